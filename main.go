package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"

	"github.com/carlmjohnson/versioninfo"
	"github.com/iancoleman/strcase"
	"github.com/muesli/reflow/indent"
	"github.com/pdok/skmosaic/analysis"
	"github.com/pdok/skmosaic/config"
	"github.com/pdok/skmosaic/spaceknow"
	"github.com/pdok/skmosaic/store"
	"github.com/urfave/cli/v2"
)

const CONFIG string = `config`
const RESULTDIR string = `resultDir`
const TOKENFILE string = `tokenFile`
const USERNAME string = `spaceknowUsername`
const PASSWORD string = `spaceknowPassword`
const CLIENTID string = `spaceknowClientId`
const ALL string = `all`
const SCENE string = `scene`
const PERTILE string = `perTile`

//nolint:funlen
func main() {
	app := cli.NewApp()
	app.Name = "skmosaic"
	app.Usage = "Detect cars in satellite imagery of an area and compose the results into one image"
	app.Version = versioninfo.Short()
	app.Writer = os.Stdout

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:     CONFIG,
			Aliases:  []string{"c"},
			Usage:    "JSON settings file, defaults are used for absent settings",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(CONFIG)},
		},
		&cli.StringFlag{
			Name:     RESULTDIR,
			Aliases:  []string{"r"},
			Usage:    "Directory with one subdirectory of tiles and results per scene",
			Value:    "result",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(RESULTDIR)},
		},
		&cli.StringFlag{
			Name:     TOKENFILE,
			Usage:    "File caching the auth token, so the auth server is not asked every run",
			Value:    "auth_token.txt",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(TOKENFILE)},
		},
		&cli.StringFlag{
			Name:     USERNAME,
			Usage:    "SpaceKnow username, needed when no token is cached",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(USERNAME)},
		},
		&cli.StringFlag{
			Name:     PASSWORD,
			Usage:    "SpaceKnow password, needed when no token is cached",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(PASSWORD)},
		},
		&cli.StringFlag{
			Name:     CLIENTID,
			Usage:    "Client id at the auth server, overrides the api.clientId setting",
			Required: false,
			EnvVars:  []string{strcase.ToScreamingSnake(CLIENTID)},
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:  "credits",
			Usage: "Print remaining user credits",
			Action: func(c *cli.Context) error {
				client, _, err := newClient(c)
				if err != nil {
					return err
				}
				credit, err := client.RemainingCredit(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Remaining user credits: %v\n", credit)
				return nil
			},
		},
		{
			Name:  "user-info",
			Usage: "Print user info",
			Action: func(c *cli.Context) error {
				client, _, err := newClient(c)
				if err != nil {
					return err
				}
				info, err := client.UserInfo(c.Context)
				if err != nil {
					return err
				}
				pretty, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, "User info:")
				fmt.Fprintln(c.App.Writer, indent.String(string(pretty), 2))
				return nil
			},
		},
		{
			Name:      "analyze",
			Usage:     "Run 'cars' detection over the area of a GeoJSON file",
			ArgsUsage: "<geojson>",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  ALL,
					Usage: "Analyse all found imagery instead of asking",
				},
				&cli.StringSliceFlag{
					Name:  SCENE,
					Usage: "Analyse the found imagery with this scene id instead of asking",
				},
				&cli.BoolFlag{
					Name:  PERTILE,
					Usage: "Also outline detections on every single imagery tile",
				},
			},
			Action: func(c *cli.Context) error {
				if c.NArg() != 1 {
					return cli.Exit("expected the path of one GeoJSON file", 1)
				}
				extent, err := analysis.LoadExtent(c.Args().First())
				if err != nil {
					return err
				}
				client, settings, err := newClient(c)
				if err != nil {
					return err
				}
				settings.Render.PerTile = settings.Render.PerTile || c.Bool(PERTILE)

				var selector analysis.Selector
				switch {
				case len(c.StringSlice(SCENE)) > 0:
					ids := c.StringSlice(SCENE)
					selector = analysis.SelectorFunc(func(scenes []spaceknow.Scene) ([]spaceknow.Scene, error) {
						return analysis.SelectByID(scenes, ids)
					})
				case c.Bool(ALL):
					selector = analysis.SelectAll
				default:
					selector = analysis.NewPrompter(os.Stdin, c.App.Writer)
				}

				o, err := analysis.NewOrchestrator(client, settings, c.String(RESULTDIR), c.App.Writer)
				if err != nil {
					return err
				}
				stats, err := o.Run(c.Context, extent, selector)
				if err != nil {
					return err
				}
				fmt.Fprintln(c.App.Writer, "\n-------------------------------------------------------------")
				fmt.Fprintf(c.App.Writer, "Analysis done, see '%s' for generated data. Stats:\n", c.String(RESULTDIR))
				stats.Print(c.App.Writer)
				log.Printf("%d API request(s) sent", client.Queries())
				return nil
			},
		},
		{
			Name:  "compose",
			Usage: "Compose the result of an analysed scene again from its stored tiles",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     SCENE,
					Usage:    "Scene id, the name of its directory in the result directory",
					Required: true,
				},
				&cli.BoolFlag{
					Name:  PERTILE,
					Usage: "Also outline detections on every single imagery tile",
				},
			},
			Action: func(c *cli.Context) error {
				settings, err := config.Load(c.String(CONFIG))
				if err != nil {
					return err
				}
				settings.Render.PerTile = settings.Render.PerTile || c.Bool(PERTILE)

				scene, err := store.Open(c.String(RESULTDIR), c.String(SCENE))
				if err != nil {
					return err
				}
				manifest, err := scene.LoadManifest()
				if err != nil {
					return err
				}
				log.Printf("=== composing scene %s ===", manifest.SceneID)
				manifest, counts, err := analysis.Compose(scene, manifest, settings)
				if err != nil {
					return err
				}
				log.Println("=== done composing ===")
				fmt.Fprintf(c.App.Writer, "%s: %s (%s)\n", manifest.SceneID, scene.ResultPath(settings.Render.Format), counts)
				return nil
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	err := app.RunContext(ctx, os.Args)
	if err != nil {
		log.Fatal(err)
	}
}

// newClient loads the settings and returns an authenticated API client
func newClient(c *cli.Context) (*spaceknow.Client, config.Settings, error) {
	settings, err := config.Load(c.String(CONFIG))
	if err != nil {
		return nil, settings, err
	}
	if id := c.String(CLIENTID); id != "" {
		settings.API.ClientID = id
	}
	client := spaceknow.NewClient(spaceknow.Config{
		AuthURL:  settings.API.AuthURL,
		BaseURL:  settings.API.BaseURL,
		ClientID: settings.API.ClientID,
		HTTPClient: &http.Client{
			Timeout:   settings.API.Timeout(),
			Transport: &http.Transport{Proxy: http.ProxyFromEnvironment},
		},
	})
	credentials := spaceknow.Credentials{
		Username: c.String(USERNAME),
		Password: c.String(PASSWORD),
	}
	if err = client.LoadOrAuthenticate(c.Context, c.String(TOKENFILE), credentials); err != nil {
		return nil, settings, fmt.Errorf("could not authenticate (set %s and %s): %w",
			strcase.ToScreamingSnake(USERNAME), strcase.ToScreamingSnake(PASSWORD), err)
	}
	return client, settings, nil
}
