package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"healthcare-coordination-client/internal/appointment"
	"healthcare-coordination-client/internal/assistant"
	"healthcare-coordination-client/internal/config"
	"healthcare-coordination-client/internal/credstore"
	"healthcare-coordination-client/internal/directory"
	"healthcare-coordination-client/internal/gateway"
	"healthcare-coordination-client/internal/model"
	"healthcare-coordination-client/internal/session"
)

// app wires the core components once per invocation. The CLI is the
// presentation collaborator: it renders whatever the core returns and owns no
// domain state of its own.
type app struct {
	log     zerolog.Logger
	store   *credstore.Store
	session *session.Manager
	appts   *appointment.Controller
	doctors *directory.Cache
}

func newApp(ctx context.Context) (*app, error) {
	cfg := config.Load()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	store, err := credstore.Open(cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(cfg.GatewayURL,
		gateway.WithTimeout(cfg.RequestTimeout),
		gateway.WithRateLimit(cfg.RateRPS, cfg.RateBurst),
		gateway.WithLogger(log),
	)
	sm := session.NewManager(store, gw, log)
	if err := sm.Restore(ctx); err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		log:     log,
		store:   store,
		session: sm,
		appts:   appointment.NewController(sm, gw, log),
		doctors: directory.NewCache(gw),
	}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Error().Err(err).Msg("closing credential store")
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "healthctl",
		Short:         "healthcare coordination client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		loginCmd(),
		logoutCmd(),
		registerCmd(),
		whoamiCmd(),
		doctorsCmd(),
		appointmentsCmd(),
		chatCmd(),
	)
	return root
}

// withApp builds the app, runs fn, and tears everything down.
func withApp(fn func(ctx context.Context, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close()
		return fn(ctx, a)
	}
}

func loginCmd() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "login <username>",
		Short: "sign in and persist the session",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.RunE = func(c *cobra.Command, args []string) error {
		if password == "" {
			fmt.Fprint(os.Stderr, "password: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return err
			}
			password = strings.TrimSpace(line)
		}
		return withApp(func(ctx context.Context, a *app) error {
			user, err := a.session.Login(ctx, args[0], password)
			if err != nil {
				return err
			}
			fmt.Printf("signed in as %s (%s)\n", user.DisplayName(), user.Role)
			return nil
		})(c, args)
	}
	return cmd
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "sign out and clear stored credentials",
		RunE: withApp(func(_ context.Context, a *app) error {
			a.session.Logout()
			fmt.Println("signed out")
			return nil
		}),
	}
}

func registerCmd() *cobra.Command {
	var req gateway.RegisterRequest
	var role string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "create an account",
	}
	cmd.Flags().StringVar(&req.Username, "username", "", "username")
	cmd.Flags().StringVar(&req.Email, "email", "", "email")
	cmd.Flags().StringVar(&req.Password, "password", "", "password")
	cmd.Flags().StringVar(&req.PasswordConfirm, "password2", "", "password confirmation")
	cmd.Flags().StringVar(&req.FirstName, "first-name", "", "first name")
	cmd.Flags().StringVar(&req.LastName, "last-name", "", "last name")
	cmd.Flags().StringVar(&role, "role", string(model.RolePatient), "patient, doctor or admin")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		req.Role = model.Role(role)
		user, err := a.session.Register(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (id %d); run `healthctl login %s` to sign in\n",
			user.DisplayName(), user.ID, user.Username)
		return nil
	})
	return cmd
}

func whoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "show the current session",
		RunE: withApp(func(_ context.Context, a *app) error {
			user, ok := a.session.CurrentUser()
			if !ok {
				fmt.Println("not signed in")
				return nil
			}
			fmt.Printf("%s <%s> role=%s id=%d\n", user.DisplayName(), user.Email, user.Role, user.ID)
			return nil
		}),
	}
}

func doctorsCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "doctors",
		Short: "list clinicians available for booking",
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the session cache")
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		if refresh {
			a.doctors.Invalidate()
		}
		entries, err := a.doctors.Load(ctx)
		if err != nil {
			return err
		}
		for _, d := range entries {
			fmt.Printf("%4d  %s\n", d.ID, d.DisplayName())
		}
		return nil
	})
	return cmd
}

func appointmentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "appointments",
		Aliases: []string{"appt"},
		Short:   "manage the appointment lifecycle",
	}
	cmd.AddCommand(apptListCmd(), apptBookCmd(), apptEditCmd(), apptConfirmCmd(), apptCancelCmd())
	return cmd
}

func apptListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list appointments visible to you",
		RunE: withApp(func(ctx context.Context, a *app) error {
			appts, err := a.appts.List(ctx)
			if err != nil {
				return err
			}
			if len(appts) == 0 {
				fmt.Println("no appointments")
				return nil
			}
			for _, appt := range appts {
				printAppointment(a, appt)
			}
			return nil
		}),
	}
}

// the counterpart name depends on which side of the booking you are on
func printAppointment(a *app, appt model.Appointment) {
	counterpart := appt.DoctorName
	if user, ok := a.session.CurrentUser(); ok && user.Role == model.RoleDoctor {
		counterpart = appt.PatientName
	}
	fmt.Printf("%4d  %s %s  %-10s %-12s %s\n",
		appt.ID, appt.Date, appt.Time, appt.Status, appt.Type, counterpart)
}

func bookingFlags(cmd *cobra.Command, req *appointment.BookingRequest) {
	cmd.Flags().Int64Var(&req.DoctorID, "doctor", 0, "doctor id")
	cmd.Flags().StringVar(&req.Date, "date", "", "date (2006-01-02)")
	cmd.Flags().StringVar(&req.Time, "time", "", "time of day (15:04)")
	cmd.Flags().StringVar(&req.Type, "type", "", "appointment type")
	cmd.Flags().StringVar(&req.Reason, "reason", "", "free-text reason")
}

func apptBookCmd() *cobra.Command {
	var req appointment.BookingRequest
	cmd := &cobra.Command{
		Use:   "book",
		Short: "book a new appointment (patients)",
	}
	bookingFlags(cmd, &req)
	cmd.RunE = withApp(func(ctx context.Context, a *app) error {
		if _, err := a.appts.List(ctx); err != nil {
			return err
		}
		appt, err := a.appts.Create(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("booked appointment %d with %s on %s %s\n",
			appt.ID, appt.DoctorName, appt.Date, appt.Time)
		return nil
	})
	return cmd
}

func apptEditCmd() *cobra.Command {
	var req appointment.BookingRequest
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "edit a pending appointment you own (patients)",
		Args:  cobra.ExactArgs(1),
	}
	bookingFlags(cmd, &req)
	cmd.RunE = func(c *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("bad appointment id %q", args[0])
		}
		return withApp(func(ctx context.Context, a *app) error {
			if _, err := a.appts.List(ctx); err != nil {
				return err
			}
			appt, err := a.appts.UpdateDetails(ctx, id, req)
			if err != nil {
				return err
			}
			fmt.Printf("updated appointment %d: %s %s\n", appt.ID, appt.Date, appt.Time)
			return nil
		})(c, args)
	}
	return cmd
}

func apptConfirmCmd() *cobra.Command {
	return transitionCmd("confirm <id>", "confirm a pending appointment (doctors)",
		func(ctx context.Context, a *app, id int64) (model.Appointment, error) {
			return a.appts.Confirm(ctx, id)
		})
}

func apptCancelCmd() *cobra.Command {
	return transitionCmd("cancel <id>", "cancel a pending appointment",
		func(ctx context.Context, a *app, id int64) (model.Appointment, error) {
			return a.appts.Cancel(ctx, id)
		})
}

func transitionCmd(use, short string, run func(context.Context, *app, int64) (model.Appointment, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("bad appointment id %q", args[0])
			}
			return withApp(func(ctx context.Context, a *app) error {
				if _, err := a.appts.List(ctx); err != nil {
					return err
				}
				appt, err := run(ctx, a, id)
				if err != nil {
					return err
				}
				fmt.Printf("appointment %d is now %s\n", appt.ID, appt.Status)
				return nil
			})(c, args)
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "talk to the diagnostic assistant",
		RunE: func(*cobra.Command, []string) error {
			log := assistant.NewLog()
			for _, msg := range log.History() {
				fmt.Printf("%s: %s\n", msg.Sender, msg.Text)
			}
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Print("> ")
			for scanner.Scan() {
				text := strings.TrimSpace(scanner.Text())
				if text == "" || text == "exit" {
					break
				}
				reply := log.Send(text)
				fmt.Printf("%s: %s\n> ", reply.Sender, reply.Text)
			}
			return scanner.Err()
		},
	}
}
