package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/urfave/cli/v3"

	"github.com/rubiojr/scout/pkg/mgrs"
)

// MGRSCommand creates the mgrs command
func MGRSCommand() *cli.Command {
	return &cli.Command{
		Name:  "mgrs",
		Usage: "Convert between MGRS references and latitude/longitude",
		Commands: []*cli.Command{
			{
				Name:      "decode",
				Usage:     "Print the centre of MGRS cells as lat,lon",
				ArgsUsage: "<reference...>",
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() == 0 {
						return fmt.Errorf("decode needs at least one MGRS reference")
					}
					for _, ref := range c.Args().Slice() {
						lat, lon, err := mgrs.ToLatLon(ref)
						if err != nil {
							return err
						}
						fmt.Printf("%s\t%.6f,%.6f\n", ref, lat, lon)
					}
					return nil
				},
			},
			{
				Name:      "encode",
				Usage:     "Print the MGRS reference containing lat,lon",
				ArgsUsage: "[--] <lat> <lon>",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "precision",
						Usage: "Digit pairs, from 0 (100km) to 5 (1m)",
						Value: 5,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					if c.Args().Len() != 2 {
						return fmt.Errorf("encode takes a latitude and a longitude")
					}
					lat, err := strconv.ParseFloat(c.Args().Get(0), 64)
					if err != nil {
						return fmt.Errorf("parsing latitude: %w", err)
					}
					lon, err := strconv.ParseFloat(c.Args().Get(1), 64)
					if err != nil {
						return fmt.Errorf("parsing longitude: %w", err)
					}
					ref, err := mgrs.FromLatLon(lat, lon, c.Int("precision"))
					if err != nil {
						return err
					}
					fmt.Println(ref.String())
					return nil
				},
			},
		},
	}
}
