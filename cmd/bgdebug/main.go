// Command bgdebug prints, for every managed element of a page, the width it
// is laid out at, the width it needs and the candidate it would get.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"respbg/internal/htmlhost"
	"respbg/srcset"
)

func main() {
	width := flag.Float64("w", htmlhost.DefaultViewport.Width, "viewport width")
	dpr := flag.Float64("dpr", 1, "device pixel ratio")
	selector := flag.String("selector", srcset.DefaultSelector, "attribute suffix")
	flag.Parse()

	url := "https://example.com/"
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}
	log.Printf("fetch %s", url)
	var body io.Reader
	if strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://") {
		req, _ := http.NewRequest(http.MethodGet, url, nil)
		req.Header.Set("User-Agent", "bgdebug/1.0")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			log.Fatal(err)
		}
		defer resp.Body.Close()
		body = resp.Body
	} else {
		f, err := os.Open(url)
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		body = f
	}
	doc, err := htmlhost.Parse(body, htmlhost.Viewport{Width: *width, PixelRatio: *dpr})
	if err != nil {
		log.Fatal(err)
	}
	if err := dump(os.Stdout, doc, srcset.Config{Selector: *selector}); err != nil {
		log.Fatal(err)
	}
}

func dump(w io.Writer, doc *htmlhost.Document, cfg srcset.Config) error {
	ctx := context.Background()
	cfg = srcset.DefaultConfig().Merge(cfg)
	elems, err := doc.Elements(ctx, cfg.Attribute())
	if err != nil {
		return err
	}
	ratio, _ := doc.DevicePixelRatio(ctx)
	for _, el := range elems {
		measured, err := el.MeasuredWidth(ctx)
		if err != nil {
			fmt.Fprintf(w, "node=%v error=%v\n", el, err)
			continue
		}
		decl, _, _ := el.Declaration(ctx)
		required := srcset.RequiredWidth(measured, ratio)
		cs, err := srcset.Parse(decl)
		if err != nil {
			fmt.Fprintf(w, "node=%v width=%g required=%g error=%v\n", el, measured, required, err)
			continue
		}
		pick, ok := srcset.SelectCandidate(cs, required)
		if !ok {
			fmt.Fprintf(w, "node=%v width=%g required=%g candidates=0\n", el, measured, required)
			continue
		}
		fmt.Fprintf(w, "node=%v width=%g required=%g pick=%q candidates=%q\n", el, measured, required, pick.String(), cs.String())
	}
	return nil
}
