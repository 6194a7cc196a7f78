package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/huh"
	"github.com/mdp/qrterminal/v3"
	"github.com/pquerna/otp/totp"
	"github.com/spf13/cobra"

	"pkt.systems/ait/internal/vault"
	"pkt.systems/ait/schema"
	"pkt.systems/kryptograf/keymgmt"
)

const totpIssuer = "ait"

func newProfileCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "profile",
		Aliases: []string{"profiles"},
		Short:   "Manage connection profiles",
	}
	cmd.AddCommand(newProfileAddCmd(cfgPath))
	cmd.AddCommand(newProfileListCmd(cfgPath))
	cmd.AddCommand(newProfileRemoveCmd(cfgPath))
	cmd.AddCommand(newProfilePasswdCmd(cfgPath))
	cmd.AddCommand(newProfileKeygenCmd(cfgPath))
	cmd.AddCommand(newProfileTOTPCmd(cfgPath))
	return cmd
}

type profileInput struct {
	Name     string
	Host     string
	Port     string
	User     string
	AuthType string
	Group    string
	Password string
}

func (in profileInput) profile() (schema.Profile, error) {
	p := schema.Profile{
		Name:     in.Name,
		Host:     in.Host,
		User:     in.User,
		AuthType: schema.AuthType(strings.ToLower(strings.TrimSpace(in.AuthType))),
		Group:    in.Group,
	}
	if port := strings.TrimSpace(in.Port); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return schema.Profile{}, fmt.Errorf("%w: port %q", schema.ErrInvalidProfile, port)
		}
		p.Port = n
	}
	return p, nil
}

// runProfileForm asks for the profile fields interactively.
func runProfileForm(cmd *cobra.Command, in *profileInput) error {
	if in.AuthType == "" {
		in.AuthType = string(schema.AuthPassword)
	}
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(&in.Name).Validate(func(s string) error {
				_, err := schema.NormalizeProfileName(s)
				return err
			}),
			huh.NewInput().Title("Host").Placeholder("host.example.com or local").Value(&in.Host).Validate(func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("host is required")
				}
				return nil
			}),
			huh.NewInput().Title("Port").Placeholder("22").Value(&in.Port),
			huh.NewInput().Title("User").Value(&in.User),
			huh.NewSelect[string]().Title("Authentication").Options(
				huh.NewOption("Password", string(schema.AuthPassword)),
				huh.NewOption("Private key (generated)", string(schema.AuthKey)),
				huh.NewOption("ssh-agent", string(schema.AuthAgent)),
			).Value(&in.AuthType),
			huh.NewInput().Title("Group").Value(&in.Group),
		),
		huh.NewGroup(
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&in.Password),
		).WithHideFunc(func() bool { return in.AuthType != string(schema.AuthPassword) }),
	).WithInput(cmd.InOrStdin()).WithOutput(cmd.ErrOrStderr())
	return form.RunWithContext(cmd.Context())
}

func newProfileAddCmd(cfgPath *string) *cobra.Command {
	var in profileInput
	var passwordFromStdin bool
	var keyType string
	var keyBits int
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add a profile (interactive without --host)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				in.Name = args[0]
			}
			if in.Host == "" {
				if err := runProfileForm(cmd, &in); err != nil {
					return err
				}
			} else if passwordFromStdin {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return err
				}
				in.Password = strings.TrimSpace(string(data))
			}
			p, err := in.profile()
			if err != nil {
				return err
			}
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			created, err := env.store.CreateProfile(cmd.Context(), p)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case created.IsLocal():
			case created.AuthType == schema.AuthPassword && in.Password != "":
				if err := env.vault.SetPassword(created.ID, in.Password); err != nil {
					_ = env.store.DeleteProfile(cmd.Context(), created.ID)
					return err
				}
			case created.AuthType == schema.AuthKey:
				pubKey, err := env.vault.GenerateKey(created.ID, keyType, keyBits)
				if err != nil {
					_ = env.store.DeleteProfile(cmd.Context(), created.ID)
					return err
				}
				_, _ = fmt.Fprintf(out, "ssh_public_key: %s\n", pubKey)
			}
			_, _ = fmt.Fprintf(out, "profile added: %s (%s)\n", created.Name, created.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&in.Host, "host", "", "host name or address, \"local\" for a local shell")
	cmd.Flags().StringVar(&in.Port, "port", "", "ssh port")
	cmd.Flags().StringVarP(&in.User, "user", "u", "", "login user")
	cmd.Flags().StringVar(&in.AuthType, "auth", string(schema.AuthPassword), "authentication: password, key or agent")
	cmd.Flags().StringVar(&in.Group, "group", "", "group shown in listings")
	cmd.Flags().BoolVar(&passwordFromStdin, "password-from-stdin", false, "read the password from stdin")
	cmd.Flags().StringVar(&keyType, "key-type", vault.KeyTypeEd25519, "generated key type (ed25519 or rsa)")
	cmd.Flags().IntVar(&keyBits, "key-bits", vault.DefaultRSABits, "generated key size when using rsa")
	return cmd
}

func newProfileListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, false)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			profiles, err := env.store.Profiles(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(profiles) == 0 {
				_, _ = fmt.Fprintln(out, "no profiles")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tTARGET\tAUTH\tGROUP")
			for _, p := range profiles {
				target := p.Host
				if !p.IsLocal() {
					target = p.User + "@" + p.Addr()
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, target, p.AuthType, p.Group)
			}
			return tw.Flush()
		},
	}
}

func newProfileRemoveCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <profile>",
		Aliases: []string{"delete"},
		Short:   "Remove a profile with its history, macros and secrets",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if err := env.store.DeleteProfile(cmd.Context(), p.ID); err != nil {
				return err
			}
			if err := env.vault.Remove(p.ID); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "profile removed: %s\n", p.Name)
			return nil
		},
	}
}

func newProfilePasswdCmd(cfgPath *string) *cobra.Command {
	var fromStdin bool
	cmd := &cobra.Command{
		Use:   "passwd <profile>",
		Short: "Store the login password of a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			password, err := readSecret(cmd, fromStdin, "Password: ")
			if err != nil {
				return err
			}
			if err := env.vault.SetPassword(p.ID, password); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "password stored for %s\n", p.Name)
			return nil
		},
	}
	cmd.Flags().BoolVar(&fromStdin, "password-from-stdin", false, "read the password from stdin")
	return cmd
}

func newProfileKeygenCmd(cfgPath *string) *cobra.Command {
	var keyType string
	var keyBits int
	cmd := &cobra.Command{
		Use:   "keygen <profile>",
		Short: "Generate a new private key for a key-auth profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			pubKey, err := env.vault.GenerateKey(p.ID, keyType, keyBits)
			if err != nil {
				return err
			}
			if p.AuthType != schema.AuthKey {
				p.AuthType = schema.AuthKey
				if err := env.store.UpdateProfile(cmd.Context(), p); err != nil {
					return err
				}
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ssh_public_key: %s\n", pubKey)
			return nil
		},
	}
	cmd.Flags().StringVar(&keyType, "key-type", vault.KeyTypeEd25519, "key type (ed25519 or rsa)")
	cmd.Flags().IntVar(&keyBits, "key-bits", vault.DefaultRSABits, "key size when using rsa")
	return cmd
}

func newProfileTOTPCmd(cfgPath *string) *cobra.Command {
	var secret string
	var generate bool
	var clear bool
	cmd := &cobra.Command{
		Use:   "totp <profile>",
		Short: "Store the TOTP secret used to answer verification code prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modes := 0
			for _, set := range []bool{secret != "", generate, clear} {
				if set {
					modes++
				}
			}
			if modes != 1 {
				return errors.New("choose one of --secret, --generate or --clear")
			}
			env, err := openEnv(cmd.Context(), *cfgPath, true)
			if err != nil {
				return err
			}
			defer func() { _ = env.Close() }()
			p, err := env.store.Profile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			var url string
			if generate {
				secret, url, err = generateTOTP(p.User + "@" + p.Host)
				if err != nil {
					return err
				}
			}
			if clear {
				secret = ""
			}
			if err := env.vault.SetTOTPSecret(p.ID, secret); err != nil {
				return err
			}
			if clear {
				_, _ = fmt.Fprintf(out, "totp secret cleared for %s\n", p.Name)
				return nil
			}
			printTOTPEnrollment(out, p.Name, secret, url)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "base32 secret issued by the host")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate a new secret to install on the host")
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the stored secret")
	return cmd
}

func readSecret(cmd *cobra.Command, fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", err
		}
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", errors.New("password from stdin is empty")
		}
		return secret, nil
	}
	passphrase, err := keymgmt.PromptPassphrase(cmd.InOrStdin(), prompt, cmd.ErrOrStderr())
	if err != nil {
		return "", err
	}
	if len(passphrase) == 0 {
		return "", errors.New("password is empty")
	}
	return string(passphrase), nil
}

func generateTOTP(account string) (string, string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: account,
	})
	if err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func printTOTPEnrollment(w io.Writer, name, secret, url string) {
	_, _ = fmt.Fprintf(w, "profile: %s\n", name)
	_, _ = fmt.Fprintf(w, "totp_secret: %s\n", secret)
	if url != "" {
		_, _ = fmt.Fprintf(w, "otpauth_url: %s\n", url)
		_, _ = fmt.Fprintln(w, "totp_qr:")
		qrterminal.GenerateHalfBlock(url, qrterminal.L, w)
	}
}
