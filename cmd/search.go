package cmd

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/search"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search a table with the query language",
		ArgsUsage: "<table> [query...]",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "size",
				Aliases: []string{"n"},
				Usage:   "Maximum number of results",
				Value:   10,
			},
			&cli.IntFlag{
				Name:  "from",
				Usage: "Offset of the first result",
			},
			&cli.StringFlag{
				Name:  "sort",
				Usage: "Sort keys, e.g. \"date:desc,title\"",
			},
			&cli.StringFlag{
				Name:  "filters",
				Usage: "Structured filters as a JSON object",
			},
			&cli.StringFlag{
				Name:  "fields",
				Usage: "Comma separated fields bare terms are matched against",
			},
			&cli.StringFlag{
				Name:  "facets",
				Usage: "Comma separated fields to aggregate",
			},
			&cli.BoolFlag{
				Name:  "literal",
				Usage: "Treat the query as plain words instead of the query language",
			},
			&cli.StringFlag{
				Name:  "envelope",
				Usage: "Response shape for json/yaml output: simple or es",
				Value: search.FormatSimple,
			},
			formatFlag(formatText),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() < 1 {
				return fmt.Errorf("search needs a table name")
			}
			req, err := searchRequest(c)
			if err != nil {
				return err
			}

			e, _, err := openEngine(ctx, c)
			if err != nil {
				return err
			}
			defer closeEngine(e)

			res, err := e.Search(ctx, req)
			if err != nil {
				return err
			}
			if ok, err := writeStructured(os.Stdout, c.String("format"), search.Envelope(res, c.String("envelope"), search.FormatSimple)); ok {
				return err
			}
			printResult(res)
			return nil
		},
	}
}

// searchRequest maps the command line onto the parameters accepted by
// GET /search/{table}.
func searchRequest(c *cli.Command) (*search.Request, error) {
	args := c.Args().Slice()
	params := url.Values{}
	params.Set("q", strings.Join(args[1:], " "))
	params.Set("size", strconv.Itoa(c.Int("size")))
	params.Set("from", strconv.Itoa(c.Int("from")))
	for _, name := range []string{"sort", "filters", "fields", "facets"} {
		if v := c.String(name); v != "" {
			params.Set(name, v)
		}
	}
	if c.Bool("literal") {
		params.Set("use_elasticsearch_query", "false")
	}

	req, err := search.ParseParams(params)
	if err != nil {
		return nil, err
	}
	req.Table = args[0]
	return req, nil
}

func printResult(res *search.Result) {
	fmt.Printf("%s %s\n", paint(titleStyle, fmt.Sprintf("Found %s results in %s", humanize.Comma(res.Total), res.Table)),
		paint(metaStyle, fmt.Sprintf("(%s mode, %d ms)", res.Mode, res.TookMS)))

	for i, hit := range res.Hits {
		fmt.Println()
		fmt.Printf("%s %s\n", paint(headerStyle, fmt.Sprintf("%d. %v", i+1, hit.ID)), paint(metaStyle, fmt.Sprintf("score %.3f", hit.Score)))
		keys := make([]string, 0, len(hit.Source))
		for k := range hit.Source {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			v, ok := hit.Source[k]
			if !ok || v == nil {
				continue
			}
			fmt.Printf("   %s %s\n", paint(keyStyle, k+":"), formatValue(v))
		}
	}

	if len(res.Aggregations) == 0 {
		return
	}
	fmt.Println()
	names := make([]string, 0, len(res.Aggregations))
	for name := range res.Aggregations {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Println(paint(headerStyle, name))
		for _, b := range res.Aggregations[name] {
			fmt.Printf("   %-30s %s\n", formatValue(b.Key), humanize.Comma(b.Count))
		}
	}
}
