package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"respbg/internal/browser"
	"respbg/internal/htmlhost"
	"respbg/internal/state"
	"respbg/srcset"
)

// resizableSource is a host that can change its own viewport.
type resizableSource interface {
	srcset.ElementSource
	srcset.ResizeNotifier
	resize(ctx context.Context, width float64) error
	serialize(ctx context.Context) ([]byte, error)
}

type docSource struct{ *htmlhost.Document }

func (d docSource) resize(_ context.Context, width float64) error {
	vp := d.Viewport()
	vp.Width = width
	d.Resize(vp)
	return nil
}

func (d docSource) serialize(context.Context) ([]byte, error) {
	var buf bytes.Buffer
	err := d.Render(&buf)
	return buf.Bytes(), err
}

type tabSource struct{ *browser.Tab }

func (t tabSource) resize(ctx context.Context, width float64) error {
	vp := t.Viewport()
	vp.Width = int64(width)
	return t.Resize(ctx, vp)
}

func (t tabSource) serialize(ctx context.Context) ([]byte, error) {
	markup, err := t.OuterHTML(ctx)
	return []byte("<!DOCTYPE html>\n" + markup), err
}

func isURL(s string) bool {
	l := strings.ToLower(s)
	return strings.HasPrefix(l, "http://") || strings.HasPrefix(l, "https://")
}

func readSource(ctx context.Context, src string) ([]byte, error) {
	switch {
	case src == "-":
		return io.ReadAll(os.Stdin)
	case isURL(src):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", appName+"/1.0")
		req.Header.Set("Accept", "text/html,application/xhtml+xml")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("upstream status %s", resp.Status)
		}
		return io.ReadAll(resp.Body)
	default:
		return os.ReadFile(src)
	}
}

func runApply(ctx context.Context, cmd *cli.Command) (err error) {
	env := state.EnvFromContext(ctx)
	if cmd.Args().Len() == 0 {
		return fmt.Errorf("no SOURCE has been specified")
	}
	if cmd.Args().Len() > 2 {
		env.Log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}
	src, dst := cmd.Args().Get(0), cmd.Args().Get(1)

	width := cmd.Float("width")
	if width <= 0 {
		width = env.Cfg.Viewport.Width
	}
	ratio := cmd.Float("dpr")
	if ratio <= 0 {
		ratio = env.Cfg.Viewport.PixelRatio
	}

	var host resizableSource
	if cmd.Bool("js") {
		vp := browser.Viewport{Width: int64(width), PixelRatio: ratio}
		var tab *browser.Tab
		if isURL(src) {
			tab, err = env.Browser().OpenURL(ctx, src, vp)
		} else {
			var markup []byte
			if markup, err = readSource(ctx, src); err != nil {
				return fmt.Errorf("unable to read '%s': %w", src, err)
			}
			tab, err = env.Browser().OpenHTML(ctx, string(markup), vp)
		}
		if err != nil {
			return err
		}
		defer tab.Close()
		host = tabSource{tab}
	} else {
		markup, err := readSource(ctx, src)
		if err != nil {
			return fmt.Errorf("unable to read '%s': %w", src, err)
		}
		doc, err := htmlhost.Parse(bytes.NewReader(markup), htmlhost.Viewport{Width: width, PixelRatio: ratio})
		if err != nil {
			return err
		}
		host = docSource{doc}
	}

	overrides := srcset.Config{Selector: cmd.String("selector")}
	a := srcset.NewApplier(host, nil, env.Cfg.Srcset(), env.Log)
	passes := make(chan *srcset.Report, 1)
	a.OnPass(func(rep *srcset.Report) {
		logReport(env.Log, rep)
		select {
		case passes <- rep:
		default:
		}
	})
	if _, err := a.Run(ctx, &overrides); err != nil {
		return err
	}
	<-passes

	if widths := cmd.FloatSlice("resize"); len(widths) > 0 {
		stop := a.AddResizeListener(ctx, host)
		for _, w := range widths {
			if err := host.resize(ctx, w); err != nil {
				stop()
				return err
			}
			if err := waitPass(ctx, passes, 2*a.Config().Interval+5*time.Second); err != nil {
				stop()
				return err
			}
		}
		stop()
	}

	data, err := host.serialize(ctx)
	if err != nil {
		return fmt.Errorf("unable to serialize page: %w", err)
	}
	return writeOutput(dst, data)
}

func waitPass(ctx context.Context, passes <-chan *srcset.Report, limit time.Duration) error {
	select {
	case <-passes:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(limit):
		return fmt.Errorf("no pass within %v after resize", limit)
	}
}

func logReport(log *zap.Logger, rep *srcset.Report) {
	for _, res := range rep.Results {
		if !res.Applied {
			continue
		}
		log.Info("Background picked",
			zap.Any("element", res.Element),
			zap.Float64("required", res.RequiredWidth),
			zap.String("source", res.Choice.Source),
			zap.Bool("reused", res.Choice.Reused))
	}
	if rep.Err != nil {
		log.Warn("Some elements were skipped", zap.Int("skipped", rep.Skipped), zap.Error(rep.Err))
	}
	log.Info("Pass done", zap.Int("elements", rep.Elements), zap.Int("applied", rep.Applied), zap.Int("skipped", rep.Skipped))
}

func writeOutput(dst string, data []byte) (err error) {
	if dst == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("unable to create destination file '%s': %w", dst, err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("unable to write '%s': %w", dst, err)
	}
	return nil
}
