package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"hireline/internal/app"
	"hireline/internal/config"
	"hireline/internal/db"
	"hireline/internal/domain"
	"hireline/internal/events"
	"hireline/internal/mockapi"
	"hireline/internal/store"
	hirelinesdk "hireline/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "hl",
	Short: "Hireline CLI",
	Long: `Hireline keeps a local, optimistic copy of your recruiting data.
- Session: hl login stores your profile and token in the workspace (.hireline/session.db) so later commands stay signed in.
- Sync: every read command pulls jobs, candidates and schedules for the signed-in recruiter first.
- Jobs: create, edit and delete postings; the server's copy is kept.
- Candidates: hl candidates status moves a candidate through Triagem -> Entrevista -> Aprovado/Reprovado. The change shows locally at once; if the server refuses it the data is resynced (or rolled back, see hireline.yml).
- API origin: --base-url, HIRELINE_API_BASE_URL (also read from .env, see hl use-api), then hireline.yml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("HIRELINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("base-url", "", "API origin (overrides env and hireline.yml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "log store events to stderr")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("base-url", rootCmd.PersistentFlags().Lookup("base-url"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func registerCommands() {
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(logoutCmd())
	rootCmd.AddCommand(whoamiCmd())
	rootCmd.AddCommand(syncCmd())
	rootCmd.AddCommand(jobsCmd())
	rootCmd.AddCommand(candidatesCmd())
	rootCmd.AddCommand(schedulesCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(useAPICmd())
	rootCmd.AddCommand(mockServerCmd())
}

func loginCmd() *cobra.Command {
	var creds domain.LoginCredentials
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the session in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				creds.Password = viper.GetString("password")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.SignIn(ctx, creds); err != nil {
					return fmt.Errorf("%s: %w", a.Session.Error(), err)
				}
				p, _ := a.Session.Profile()
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Signed in as %s <%s> (id %d)\n", p.Name, p.Email, p.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (or HIRELINE_PASSWORD)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func signupCmd() *cobra.Command {
	var creds domain.SignUpCredentials
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account (sign in afterwards with hl login)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if creds.Password == "" {
				creds.Password = viper.GetString("password")
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				p, err := a.Session.SignUp(ctx, creds)
				if err != nil {
					return fmt.Errorf("%s: %w", a.Session.Error(), err)
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Created account %d for %s; sign in with hl login --email %s\n", p.ID, p.Name, p.Email)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creds.Name, "name", "", "full name")
	cmd.Flags().StringVar(&creds.Email, "email", "", "account email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "account password (or HIRELINE_PASSWORD)")
	cmd.Flags().StringVar(&creds.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&creds.Company, "company", "", "company name")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session stored in this workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Session.SignOut(ctx); err != nil {
					return err
				}
				fmt.Println("Signed out")
				return nil
			})
		},
	}
}

func whoamiCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if _, err := a.RequireUser(); err != nil {
					return err
				}
				if refresh {
					if err := a.Session.RefetchProfile(ctx); err != nil {
						fmt.Fprintln(os.Stderr, "warning: showing cached profile:", err)
					}
				}
				p, _ := a.Session.Profile()
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the profile from the server")
	return cmd
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Load jobs, candidates and schedules for the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				st := a.Store.Snapshot()
				if viper.GetBool("json") {
					return printJSON(st)
				}
				fmt.Printf("Synced %d jobs, %d candidates, %d schedules\n", len(st.Jobs), len(st.Candidates), len(st.Schedules))
				return nil
			})
		},
	}
}

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage job postings",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsCreateCmd())
	cmd.AddCommand(jobsUpdateCmd())
	cmd.AddCommand(jobsDeleteCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List your job postings, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				jobs := a.Store.Jobs()
				if viper.GetBool("json") {
					return printJSON(jobs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Candidates", "Approved", "Rejected", "Created"})
				for _, j := range jobs {
					tw.AppendRow(table.Row{j.ID, j.Title, j.Status, j.CandidateCount, j.ApprovedCount, j.RejectedCount, j.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func addJobInputFlags(cmd *cobra.Command, in *domain.JobInput) {
	cmd.Flags().StringVar(&in.Title, "title", "", "job title")
	cmd.Flags().StringVar(&in.Description, "description", "", "job description")
	cmd.Flags().StringVar(&in.Address, "address", "", "work address")
	cmd.Flags().StringVar(&in.RequiredSkills, "required", "", "required skills")
	cmd.Flags().StringVar(&in.DesiredSkills, "desired", "", "desired skills")
}

func jobsCreateCmd() *cobra.Command {
	var in domain.JobInput
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a job posting",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				owner, err := a.RequireUser()
				if err != nil {
					return err
				}
				job, err := a.Engine.CreateJob(ctx, owner, in)
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	addJobInputFlags(cmd, &in)
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func jobsUpdateCmd() *cobra.Command {
	var in domain.JobInput
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Edit a job posting; omitted flags keep their current value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				current, ok := a.Store.Job(id)
				if !ok {
					return fmt.Errorf("job %d not found", id)
				}
				merged := mergeJobInput(current, in, cmd.Flags().Changed)
				job, err := a.Engine.UpdateJob(ctx, id, merged)
				if err != nil {
					return err
				}
				return printJSONOrTable(job)
			})
		},
	}
	addJobInputFlags(cmd, &in)
	return cmd
}

// mergeJobInput starts from job's current fields and takes the flags that were set.
func mergeJobInput(job domain.JobPosting, flags domain.JobInput, changed func(string) bool) domain.JobInput {
	out := domain.JobInput{
		Title:          job.Title,
		Description:    job.Description,
		Address:        job.Address,
		RequiredSkills: job.RequiredSkills,
		DesiredSkills:  job.DesiredSkills,
	}
	if changed("title") {
		out.Title = flags.Title
	}
	if changed("description") {
		out.Description = flags.Description
	}
	if changed("address") {
		out.Address = flags.Address
	}
	if changed("required") {
		out.RequiredSkills = flags.RequiredSkills
	}
	if changed("desired") {
		out.DesiredSkills = flags.DesiredSkills
	}
	return out
}

func jobsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job posting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if err := a.Engine.DeleteJob(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Deleted job %d\n", id)
				return nil
			})
		},
	}
}

func candidatesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "candidates",
		Short: "Browse candidates and move them through the pipeline",
	}
	cmd.AddCommand(candidatesListCmd())
	cmd.AddCommand(candidatesStatusCmd())
	return cmd
}

func candidatesListCmd() *cobra.Command {
	var jobID int64
	var sortBy string
	var desc bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List candidates, optionally for one job",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := store.ParseSortKey(sortBy)
			if err != nil {
				return err
			}
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				candidates := a.Store.Candidates()
				if jobID != 0 {
					candidates = a.Store.CandidatesForJob(jobID, key, desc)
				}
				if viper.GetBool("json") {
					return printJSON(candidates)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Score", "Status", "Jobs"})
				for _, c := range candidates {
					tw.AppendRow(table.Row{c.ID, c.Name, c.Score, c.Status.Value, linkIDs(c.Jobs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&jobID, "job", 0, "only candidates who applied to this job")
	cmd.Flags().StringVar(&sortBy, "sort", "score", "sort key with --job (score, nome)")
	cmd.Flags().BoolVar(&desc, "desc", false, "sort descending")
	return cmd
}

func candidatesStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <status>",
		Short: "Move a candidate to Triagem, Entrevista, Aprovado or Reprovado",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			v, err := domain.ParseStatusValue(args[1])
			if err != nil {
				return err
			}
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				m, err := a.Engine.SetCandidateStatus(ctx, id, v)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("Candidate %d: %s -> %s\n", id, m.From.Value, m.To)
				return nil
			})
		},
	}
}

func schedulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedules",
		Short: "Interview schedules",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List interview schedules",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSynced(cmd.Context(), func(ctx context.Context, a *app.App) error {
				schedules := a.Store.Schedules()
				if viper.GetBool("json") {
					return printJSON(schedules)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Start", "End", "Candidate", "Job"})
				for _, s := range schedules {
					tw.AppendRow(table.Row{s.ID, s.Title, s.Start.Local().Format(time.DateTime), s.End.Local().Format(time.DateTime), linkIDs(s.Candidate), linkIDs(s.Job)})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage hireline.yml",
	}
	var strict bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := effectiveConfig(viper.GetString("workspace"), viper.GetString("base-url"), strict)
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
	showCmd.Flags().BoolVar(&strict, "strict", false, "fail when hireline.yml is missing instead of using defaults")
	cmd.AddCommand(showCmd)
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default hireline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.AddCommand(initCmd)
	return cmd
}

func useAPICmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use-api <url>",
		Short: "Set the API origin for this workspace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimRight(strings.TrimSpace(args[0]), "/")
			if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
				return fmt.Errorf("api url must start with http:// or https://")
			}
			path := config.EnvPath(viper.GetString("workspace"))
			if err := setEnvValue(path, hirelinesdk.BaseURLEnv, url); err != nil {
				return err
			}
			fmt.Printf("Set %s=%s in %s\n", hirelinesdk.BaseURLEnv, url, path)
			return nil
		},
	}
}

func mockServerCmd() *cobra.Command {
	var addr string
	var seed, requireAuth bool
	cmd := &cobra.Command{
		Use:   "mock-server",
		Short: "Serve an in-memory Hireline API for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			api := mockapi.New(mockapi.Config{
				JWTSecret:   viper.GetString("jwt-secret"),
				RequireAuth: requireAuth,
			})
			if seed {
				u := api.SeedDemo()
				fmt.Printf("Seeded demo user %s (password: hireline, id %d)\n", u.Email, u.ID)
			}
			srv := &http.Server{Addr: addr, Handler: api}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving mock Hireline API on http://%s (OpenAPI at /openapi.json, metrics at /metrics)\n", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().BoolVar(&seed, "seed", true, "load demo data")
	cmd.Flags().BoolVar(&requireAuth, "require-auth", true, "require a bearer token outside /api/auth")
	return cmd
}

// --- helpers ---

// effectiveConfig loads hireline.yml and fills in the resolved API origin.
// With strict set a missing file is an error.
func effectiveConfig(workspace, baseURLFlag string, strict bool) (*config.Config, error) {
	load := config.LoadOptional
	if strict {
		load = config.Load
	}
	cfg, err := load(workspace)
	if err != nil {
		return nil, err
	}
	baseURL, err := config.ResolveBaseURL(workspace, baseURLFlag, cfg)
	if err != nil {
		return nil, err
	}
	cfg.API.BaseURL = baseURL
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	logger := log.New(os.Stderr, "hl: ", 0)
	a, err := app.Open(ctx, viper.GetString("workspace"), app.Options{
		BaseURL: viper.GetString("base-url"),
		Logger:  logger,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	if viper.GetBool("verbose") {
		unsubscribe := a.Store.Subscribe(logEvent(logger))
		defer unsubscribe()
	}
	return fn(ctx, a)
}

// withSynced is withApp after a bulk load for the signed-in user.
func withSynced(ctx context.Context, fn func(context.Context, *app.App) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		if err := a.Sync(ctx); err != nil {
			return err
		}
		return fn(ctx, a)
	})
}

func logEvent(logger *log.Logger) func(events.Event) {
	return func(evt events.Event) {
		if evt.EntityKind != "" {
			logger.Printf("event %d %s %s=%d %v", evt.Seq, evt.Type, evt.EntityKind, evt.EntityID, map[string]any(evt.Payload))
			return
		}
		logger.Printf("event %d %s %v", evt.Seq, evt.Type, map[string]any(evt.Payload))
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func linkIDs(refs []domain.LinkRef) string {
	parts := make([]string, 0, len(refs))
	for _, r := range refs {
		if r.Value != "" {
			parts = append(parts, fmt.Sprintf("%d (%s)", r.ID, r.Value))
			continue
		}
		parts = append(parts, strconv.FormatInt(r.ID, 10))
	}
	return strings.Join(parts, ", ")
}

// setEnvValue sets key in the dotenv file at path, keeping the other entries.
func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}
