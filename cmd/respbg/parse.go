package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"

	"respbg/srcset"
)

func runParse(_ context.Context, cmd *cli.Command) error {
	if cmd.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one DECLARATION")
	}
	cs, err := srcset.Parse(cmd.Args().First())
	if err != nil {
		return err
	}
	var (
		pick     srcset.Candidate
		picked   bool
		required float64
	)
	if w := cmd.Float("width"); w > 0 {
		required = srcset.RequiredWidth(w, cmd.Float("dpr"))
		pick, picked = srcset.SelectCandidate(cs, required)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tWIDTH\tFORCED\t")
	for _, c := range cs {
		mark := ""
		if picked && c == pick {
			mark = "<- pick"
		}
		fmt.Fprintf(tw, "%s\t%d\t%v\t%s\n", c.Source, c.Width, c.Forced, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if required > 0 {
		fmt.Printf("required width: %g\n", required)
	}
	fmt.Println(cs.String())
	return nil
}
