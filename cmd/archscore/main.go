package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"archscore/internal/app"
	"archscore/internal/config"
	"archscore/internal/db"
	"archscore/internal/domain"
	"archscore/internal/engine"
	"archscore/internal/migrate"
	"archscore/internal/repo"
	"archscore/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "archscore",
	Short: "Architecture graph rules and scoring",
	Long: `archscore stores system architectures as graphs and scores them.
- Components: typed nodes (DATABASE, CACHE, API_SERVICE, ...) with 0-10 scores on ten quality parameters, seeded from a defaults table.
- Links: typed edges (API_CALL, STREAM, CACHE_LOOKUP, ...) checked against the connection rules.
- Architectures: named sets of components and links; validate them, evaluate them, compare two of them.
- Weights: how much each parameter counts in the overall score; presets live in archscore.yml.
- Event log: every change is recorded, view with 'archscore log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("ARCHSCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Bool("require-config", false, "fail when archscore.yml is missing")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("require-config", rootCmd.PersistentFlags().Lookup("require-config"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(componentCmd())
	rootCmd.AddCommand(linkCmd())
	rootCmd.AddCommand(archCmd())
	rootCmd.AddCommand(evaluateCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(weightsCmd())
	rootCmd.AddCommand(heuristicsCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create archscore.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.MigrateContext(cmd.Context(), conn); err != nil {
				return err
			}
			fmt.Printf("Initialized archscore workspace: %s (database %s)\n", path, db.Path(workspace))
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing archscore.yml")
	return cmd
}

// --- components ---

func componentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "component", Aliases: []string{"comp"}, Short: "Manage components"}
	cmd.AddCommand(componentCreateCmd())
	cmd.AddCommand(componentListCmd())
	cmd.AddCommand(componentShowCmd())
	cmd.AddCommand(componentSetScoreCmd())
	cmd.AddCommand(componentDeleteCmd())
	return cmd
}

func componentCreateCmd() *cobra.Command {
	var id, name, typ, subtype string
	var props, scores map[string]string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a component seeded from the defaults table",
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := domain.ParseComponentType(typ)
			if err != nil {
				return err
			}
			parsed, err := parseScores(scores)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.CreateComponent(ctx, engine.ComponentCreateOptions{
					ID:         id,
					Name:       name,
					Type:       ct,
					Subtype:    subtype,
					Properties: parseProperties(props),
					Heuristics: parsed,
				})
				if err != nil {
					return err
				}
				return printComponent(c, e.Weights.Snapshot())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "component id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&typ, "type", "", "component type, e.g. DATABASE")
	cmd.Flags().StringVar(&subtype, "subtype", "", "subtype, e.g. SQL or REDIS")
	cmd.Flags().StringToStringVar(&props, "prop", nil, "property hint key=value (replicas, scaling, memoryGB, ...)")
	cmd.Flags().StringToStringVar(&scores, "score", nil, "explicit score PARAMETER=value")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func componentListCmd() *cobra.Command {
	var typ string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List components",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := repo.ComponentFilters{Limit: limit}
			if typ != "" {
				ct, err := domain.ParseComponentType(typ)
				if err != nil {
					return err
				}
				f.Type = ct
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListComponents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				w := e.Weights.Snapshot()
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Type", "Subtype", "Score"})
				for _, c := range items {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Type, c.Subtype, formatScore(c.Heuristics.WeightedScore(w))})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "type filter")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows")
	return cmd
}

func componentShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <component-id>",
		Short: "Show a component with its scores",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.GetComponent(ctx, args[0])
				if err != nil {
					return err
				}
				return printComponent(c, e.Weights.Snapshot())
			})
		},
	}
}

func componentSetScoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-score <component-id> PARAMETER=value...",
		Short: "Set scores; any value outside 0..10 rejects the whole update",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pairs, err := splitPairs(args[1:])
			if err != nil {
				return err
			}
			scores, err := parseScores(pairs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.SetComponentScores(ctx, args[0], scores)
				if err != nil {
					return err
				}
				return printComponent(c, e.Weights.Snapshot())
			})
		},
	}
}

func componentDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <component-id>",
		Short: "Delete a component and every link touching it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteComponent(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted component %s\n", args[0])
				return nil
			})
		},
	}
}

// --- links ---

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "link", Short: "Manage links"}
	cmd.AddCommand(linkCreateCmd())
	cmd.AddCommand(linkListCmd())
	cmd.AddCommand(linkDeleteCmd())
	cmd.AddCommand(linkValidateCmd())
	cmd.AddCommand(linkSuggestCmd())
	return cmd
}

func linkCreateCmd() *cobra.Command {
	var id, from, to, typ string
	var strict bool
	var scores map[string]string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Connect two components",
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := domain.ParseLinkType(typ)
			if err != nil {
				return err
			}
			parsed, err := parseScores(scores)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CreateLink(ctx, engine.LinkCreateOptions{
					ID:         id,
					SourceID:   from,
					TargetID:   to,
					Type:       lt,
					Heuristics: parsed,
					Strict:     strict,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				status := "valid"
				if !res.Valid {
					status = "INVALID (no rule allows this connection)"
				}
				fmt.Printf("Link %s: %s -> %s via %s, %s\n", res.Link.ID, res.Link.SourceID, res.Link.TargetID, res.Link.Type, status)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "link id (generated when empty)")
	cmd.Flags().StringVar(&from, "from", "", "source component id")
	cmd.Flags().StringVar(&to, "to", "", "target component id")
	cmd.Flags().StringVar(&typ, "type", "", "link type, e.g. DATABASE_QUERY")
	cmd.Flags().BoolVar(&strict, "strict", false, "reject links no rule allows")
	cmd.Flags().StringToStringVar(&scores, "score", nil, "explicit score PARAMETER=value")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func linkListCmd() *cobra.Command {
	var f repo.LinkFilters
	var typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List links",
		RunE: func(cmd *cobra.Command, args []string) error {
			if typ != "" {
				lt, err := domain.ParseLinkType(typ)
				if err != nil {
					return err
				}
				f.Type = lt
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListLinks(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Source", "Target", "Type"})
				for _, l := range items {
					tw.AppendRow(table.Row{l.ID, l.SourceID, l.TargetID, l.Type})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.ComponentID, "component", "", "links touching this component")
	cmd.Flags().StringVar(&f.SourceID, "from", "", "source filter")
	cmd.Flags().StringVar(&f.TargetID, "to", "", "target filter")
	cmd.Flags().StringVar(&typ, "type", "", "link type filter")
	return cmd
}

func linkDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <link-id>",
		Short: "Delete a link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteLink(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted link %s\n", args[0])
				return nil
			})
		},
	}
}

func linkValidateCmd() *cobra.Command {
	var from, to, typ string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check whether two components may be connected with a link type",
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := domain.ParseLinkType(typ)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ok, err := e.ValidateConnectionByID(ctx, from, to, lt)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"source_id": from, "target_id": to, "type": lt, "valid": ok})
				}
				if ok {
					fmt.Printf("%s -> %s via %s is allowed\n", from, to, lt)
				} else {
					fmt.Printf("%s -> %s via %s is NOT allowed\n", from, to, lt)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source component id")
	cmd.Flags().StringVar(&to, "to", "", "target component id")
	cmd.Flags().StringVar(&typ, "type", "", "link type")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func linkSuggestCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "suggest",
		Short: "List link types allowed between two components",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s, err := e.SuggestByID(ctx, from, to)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Println(s.Message)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "source component id")
	cmd.Flags().StringVar(&to, "to", "", "target component id")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

// --- architectures ---

func archCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "arch", Aliases: []string{"architecture"}, Short: "Manage architectures"}
	cmd.AddCommand(archCreateCmd())
	cmd.AddCommand(archListCmd())
	cmd.AddCommand(archShowCmd())
	cmd.AddCommand(archAddComponentCmd())
	cmd.AddCommand(archAddLinkCmd())
	cmd.AddCommand(archValidateCmd())
	cmd.AddCommand(archEvaluateCmd())
	cmd.AddCommand(archHistoryCmd())
	cmd.AddCommand(archCompareCmd())
	cmd.AddCommand(archDeleteCmd())
	return cmd
}

func archCreateCmd() *cobra.Command {
	var id, name string
	var components, links []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an architecture from existing components and links",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateArchitecture(ctx, engine.ArchitectureCreateOptions{
					ID:           id,
					Name:         name,
					ComponentIDs: components,
					LinkIDs:      links,
				})
				if err != nil {
					return err
				}
				return printArchitecture(a)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "architecture id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "architecture name")
	cmd.Flags().StringSliceVar(&components, "component", nil, "member component id (repeatable)")
	cmd.Flags().StringSliceVar(&links, "link", nil, "member link id (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func archListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List architectures",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListArchitectures(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Components", "Links", "Created"})
				for _, a := range items {
					tw.AppendRow(table.Row{a.ID, a.Name, a.ComponentCount, a.LinkCount, a.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func archShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <architecture-id>",
		Short: "Show an architecture with its members",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.GetArchitecture(ctx, args[0])
				if err != nil {
					return err
				}
				return printArchitecture(a)
			})
		},
	}
}

func archAddComponentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-component <architecture-id> <component-id>",
		Short: "Add a component to an architecture",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddComponent(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printArchitecture(a)
			})
		},
	}
}

func archAddLinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add-link <architecture-id> <link-id>",
		Short: "Add a link to an architecture",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.AddLink(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				return printArchitecture(a)
			})
		},
	}
}

func archValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <architecture-id>",
		Short: "Check every link and report disconnected components",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ValidateArchitectureByID(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printValidation(res.Valid, res.Violations, res.Warnings)
				return nil
			})
		},
	}
}

func archEvaluateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <architecture-id>",
		Short: "Score an architecture and record the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.EvaluateByID(ctx, args[0])
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
}

func archHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <architecture-id>",
		Short: "Recorded evaluations, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.EvaluationHistory(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "When", "Score", "Valid"})
				for _, rec := range items {
					tw.AppendRow(table.Row{rec.ID, rec.CreatedAt, formatScore(rec.Overall), rec.Valid})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of evaluations")
	return cmd
}

func archCompareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare <architecture-id> <architecture-id>",
		Short: "Compare two architectures; the difference is first minus second",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				cmp, err := e.CompareByID(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(cmp)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Parameter", cmp.A.Name, cmp.B.Name})
				for _, p := range domain.Parameters() {
					tw.AppendRow(table.Row{p, formatScore(cmp.A.ByParameter[p]), formatScore(cmp.B.ByParameter[p])})
				}
				tw.AppendFooter(table.Row{"Overall", formatScore(cmp.A.Score), formatScore(cmp.B.Score)})
				tw.Render()
				fmt.Printf("Winner: %s (difference %+.2f)\n", cmp.Winner, cmp.ScoreDifference)
				return nil
			})
		},
	}
}

func archDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <architecture-id>",
		Short: "Delete an architecture; members are kept",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteArchitecture(ctx, args[0]); err != nil {
					return err
				}
				fmt.Printf("Deleted architecture %s\n", args[0])
				return nil
			})
		},
	}
}

func evaluateCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate a graph described in a YAML or JSON file without storing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			arch, err := loadGraphFile(file)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.EvaluateAdHoc(arch)
				if err != nil {
					return err
				}
				return printEvaluation(ev)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "graph file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// --- rules, weights, heuristics ---

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "rules", Short: "Inspect connection rules"}
	var typ string
	list := &cobra.Command{
		Use:   "list",
		Short: "List connection rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items := e.Rules.Registry.All()
				if typ != "" {
					lt, err := domain.ParseLinkType(typ)
					if err != nil {
						return err
					}
					items = e.Rules.Registry.RulesFor(lt)
				}
				type ruleRow struct {
					Name        string          `json:"name"`
					LinkType    domain.LinkType `json:"link_type"`
					Description string          `json:"description"`
				}
				rows := make([]ruleRow, 0, len(items))
				for _, r := range items {
					rows = append(rows, ruleRow{Name: r.Name(), LinkType: r.LinkType(), Description: r.Description()})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Rule", "Link type", "Allows"})
				for _, r := range rows {
					tw.AppendRow(table.Row{r.Name, r.LinkType, r.Description})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&typ, "type", "", "link type filter")
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Rule counts per link type",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				s := e.Rules.Registry.Stats()
				if viper.GetBool("json") {
					return printJSON(s)
				}
				fmt.Println(s.String())
				return nil
			})
		},
	}
	cmd.AddCommand(list, stats)
	return cmd
}

func weightsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "weights", Short: "Parameter weights from archscore.yml"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective weights",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				w := e.Weights.Snapshot()
				if viper.GetBool("json") {
					return printJSON(w)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Parameter", "Weight"})
				for _, p := range domain.Parameters() {
					tw.AppendRow(table.Row{p, w.Weight(p)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func heuristicsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "heuristics", Short: "Inspect the defaults table"}
	var subtype string
	defaults := &cobra.Command{
		Use:   "defaults <component-type>",
		Short: "Default scores for a component type and subtype",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ct, err := domain.ParseComponentType(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"type":       ct,
						"subtypes":   e.Defaults.Subtypes(ct),
						"heuristics": e.Defaults.ForType(ct, subtype),
					})
				}
				fmt.Printf("%s subtypes: %s\n", ct, strings.Join(e.Defaults.Subtypes(ct), ", "))
				printProfile(e.Defaults.ForType(ct, subtype))
				return nil
			})
		},
	}
	defaults.Flags().StringVar(&subtype, "subtype", "", "subtype; unknown subtypes fall back to default")
	link := &cobra.Command{
		Use:   "link <link-type>",
		Short: "Default scores for a link type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lt, err := domain.ParseLinkType(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if viper.GetBool("json") {
					return printJSON(e.Defaults.ForLinkType(lt))
				}
				printProfile(e.Defaults.ForLinkType(lt))
				return nil
			})
		},
	}
	cmd.AddCommand(defaults, link)
	return cmd
}

func logCmd() *cobra.Command {
	log := &cobra.Command{
		Use:   "log",
		Short: "Event log",
		Long:  "Every change to components, links, architectures, weights and rules, plus each evaluation.",
	}
	var n int
	var f repo.EventFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(events)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "When", "Type", "Entity", "Payload"})
				for _, evt := range events {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.EntityKind + " " + evt.EntityID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&n, "n", 20, "number of events")
	tail.Flags().StringVar(&f.Type, "type", "", "event type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id")
	log.AddCommand(tail)
	return log
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()
			if !cmd.Flags().Changed("addr") && a.Config.Server.Addr != "" {
				addr = a.Config.Server.Addr
			}
			if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
				basePath = a.Config.Server.BasePath
			}
			handler, err := server.New(server.Config{Engine: a.Engine, BasePath: basePath, Logger: a.Logger})
			if err != nil {
				return err
			}
			go func() {
				if err := a.WatchHeuristics(ctx); err != nil {
					a.Logger.Error("heuristics watch stopped", "err", err)
				}
			}()
			if server.StartWebhooks(ctx, a.Engine, a.Logger) {
				a.Logger.Info("webhooks enabled", "count", len(a.Config.Webhooks))
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
			fmt.Printf("Serving archscore API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs, metrics at /metrics)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func openApp(ctx context.Context) (*app.App, error) {
	return app.Open(ctx, viper.GetString("workspace"), app.Options{RequireConfig: viper.GetBool("require-config")})
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a.Engine)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func printProfile(h domain.HeuristicProfile) {
	tw := newTable()
	tw.AppendHeader(table.Row{"Parameter", "Score"})
	for _, p := range domain.Parameters() {
		tw.AppendRow(table.Row{p, formatScore(h.Score(p))})
	}
	tw.Render()
}

func printComponent(c domain.Component, w domain.ParameterWeights) error {
	if viper.GetBool("json") {
		return printJSON(c)
	}
	subtype := c.Subtype
	if subtype == "" {
		subtype = "-"
	}
	fmt.Printf("%s (%s) type=%s subtype=%s score=%s\n", c.DisplayName(), c.ID, c.Type, subtype, formatScore(c.Heuristics.WeightedScore(w)))
	if len(c.Properties) > 0 {
		keys := make([]string, 0, len(c.Properties))
		for k := range c.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s=%v\n", k, c.Properties[k])
		}
	}
	printProfile(c.Heuristics)
	return nil
}

func printArchitecture(a domain.Architecture) error {
	if viper.GetBool("json") {
		return printJSON(a)
	}
	fmt.Printf("%s (%s): %d components, %d links\n", a.DisplayName(), a.ID, len(a.Components), len(a.Links))
	tw := newTable()
	tw.AppendHeader(table.Row{"Kind", "ID", "Name / Edge", "Type"})
	for _, c := range a.Components {
		tw.AppendRow(table.Row{"component", c.ID, c.DisplayName(), c.Type})
	}
	for _, l := range a.Links {
		tw.AppendRow(table.Row{"link", l.ID, l.SourceID + " -> " + l.TargetID, l.Type})
	}
	tw.Render()
	return nil
}

func printValidation(valid bool, violations, warnings []string) {
	if valid {
		fmt.Println("Valid")
	} else {
		fmt.Println("INVALID")
	}
	for _, v := range violations {
		fmt.Println("  violation:", v)
	}
	for _, w := range warnings {
		fmt.Println("  warning:", w)
	}
}

func printEvaluation(ev engine.Evaluation) error {
	if viper.GetBool("json") {
		return printJSON(ev)
	}
	name := ev.ArchitectureName
	if name == "" {
		name = ev.ArchitectureID
	}
	fmt.Printf("%s: overall %s (%d components, %d links)\n", name, formatScore(ev.Overall), ev.ComponentCount, ev.LinkCount)
	tw := newTable()
	tw.AppendHeader(table.Row{"Parameter", "Score"})
	for _, p := range domain.Parameters() {
		tw.AppendRow(table.Row{p, formatScore(ev.ByParameter[p])})
	}
	tw.Render()
	if len(ev.Bottlenecks) > 0 {
		bt := newTable()
		bt.AppendHeader(table.Row{"Bottleneck", "Type", "Score", "In", "Out"})
		for _, b := range ev.Bottlenecks {
			bt.AppendRow(table.Row{b.ComponentName, b.ComponentType, formatScore(b.Score), b.Incoming, b.Outgoing})
		}
		bt.Render()
	}
	for _, insight := range ev.Insights {
		fmt.Println("-", insight)
	}
	printValidation(ev.Valid, ev.Violations, ev.Warnings)
	return nil
}

// splitPairs turns KEY=VALUE arguments into a map.
func splitPairs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("%w: expected PARAMETER=value, got %q", domain.ErrValidation, arg)
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out, nil
}

func parseScores(in map[string]string) (map[domain.Parameter]float64, error) {
	out := make(map[domain.Parameter]float64, len(in))
	for name, raw := range in {
		p, err := domain.ParseParameter(name)
		if err != nil {
			return nil, err
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: score for %s must be a number, got %q", domain.ErrValidation, p, raw)
		}
		out[p] = v
	}
	return out, nil
}

// parseProperties keeps numbers and booleans typed so property hints apply.
func parseProperties(in map[string]string) domain.Properties {
	if len(in) == 0 {
		return nil
	}
	out := make(domain.Properties, len(in))
	for k, raw := range in {
		switch {
		case raw == "true" || raw == "false":
			out[k] = raw == "true"
		default:
			if f, err := strconv.ParseFloat(raw, 64); err == nil {
				out[k] = f
			} else {
				out[k] = raw
			}
		}
	}
	return out
}
