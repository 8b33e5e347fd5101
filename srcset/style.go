package srcset

import (
	"strings"

	"github.com/aymerick/douceur/parser"
)

// StyleDeclaration is one property of an inline style attribute.
type StyleDeclaration struct {
	Property  string
	Value     string
	Important bool
}

func (d StyleDeclaration) String() string {
	s := d.Property + ": " + d.Value
	if d.Important {
		s += " !important"
	}
	return s
}

// ParseInlineStyle splits a style attribute into declarations. Property
// names are lower-cased.
func ParseInlineStyle(style string) []StyleDeclaration {
	inline := strings.TrimSpace(style)
	if inline == "" {
		return nil
	}
	if !strings.HasSuffix(inline, ";") {
		inline += ";"
	}
	if decls, err := parser.ParseDeclarations(inline); err == nil {
		out := make([]StyleDeclaration, 0, len(decls))
		for _, d := range decls {
			if d == nil || strings.TrimSpace(d.Property) == "" {
				continue
			}
			out = append(out, StyleDeclaration{
				Property:  strings.ToLower(strings.TrimSpace(d.Property)),
				Value:     strings.TrimSpace(d.Value),
				Important: d.Important,
			})
		}
		return out
	}
	var out []StyleDeclaration
	for _, part := range strings.Split(inline, ";") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		value := strings.TrimSpace(kv[1])
		important := false
		if strings.HasSuffix(strings.ToLower(value), "!important") {
			important = true
			value = strings.TrimSpace(value[:len(value)-len("!important")])
		}
		out = append(out, StyleDeclaration{
			Property:  strings.ToLower(strings.TrimSpace(kv[0])),
			Value:     value,
			Important: important,
		})
	}
	return out
}

// BackgroundImageValue renders src as a CSS url() value.
func BackgroundImageValue(src string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "url('" + r.Replace(src) + "')"
}

// SetBackgroundImage returns style with its background-image declaration set
// to src. Other declarations keep their order.
func SetBackgroundImage(style, src string) string {
	bg := StyleDeclaration{Property: "background-image", Value: BackgroundImageValue(src)}
	decls := ParseInlineStyle(style)
	out := make([]string, 0, len(decls)+1)
	replaced := false
	for _, d := range decls {
		if d.Property == "background-image" {
			if !replaced {
				out = append(out, bg.String())
				replaced = true
			}
			continue
		}
		out = append(out, d.String())
	}
	if !replaced {
		out = append(out, bg.String())
	}
	return strings.Join(out, "; ")
}
