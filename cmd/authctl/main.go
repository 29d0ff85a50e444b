// Command authctl is the operator tool for tenantauth deployments.
//
//	authctl hash-password [-algorithm argon2id|bcrypt]
//	authctl migrate -dsn postgres://...
//	authctl create-user -dsn postgres://... -username alice [-tenant default] [-roles USER]
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/MrEthical07/tenantauth"
	"github.com/MrEthical07/tenantauth/password"
	"github.com/MrEthical07/tenantauth/users"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	var err error
	switch os.Args[1] {
	case "hash-password":
		err = hashPassword(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "migrate":
		err = migrate(ctx, os.Args[2:])
	case "create-user":
		err = createUser(ctx, os.Args[2:], os.Stdin, os.Stdout)
	case "-h", "--help", "help":
		usage()
		return
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: authctl <command> [flags]

commands:
  hash-password   print a password digest for the static user list
  migrate         apply the users table migrations
  create-user     insert an account into the users table`)
}

func hashPassword(ctx context.Context, args []string, in *os.File, out io.Writer) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	algorithm := fs.String("algorithm", tenantauth.PasswordArgon2id, "argon2id or bcrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}

	scheme, err := newScheme(*algorithm)
	if err != nil {
		return err
	}
	plaintext, err := readPassword(in, out)
	if err != nil {
		return err
	}

	digest, err := password.NewHasher(password.NewPool(1), scheme).Hash(ctx, plaintext)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, digest)
	return nil
}

func migrate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	dsn := fs.String("dsn", os.Getenv("USERS_DATABASE_DSN"), "users database DSN")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" {
		return errors.New("-dsn or USERS_DATABASE_DSN is required")
	}

	db, err := users.OpenPostgres(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := users.Migrate(ctx, db); err != nil {
		return err
	}
	fmt.Println(color.GreenString("users migrations applied"))
	return nil
}

func createUser(ctx context.Context, args []string, in *os.File, out io.Writer) error {
	fs := flag.NewFlagSet("create-user", flag.ContinueOnError)
	dsn := fs.String("dsn", os.Getenv("USERS_DATABASE_DSN"), "users database DSN")
	tenantID := fs.String("tenant", "default", "tenant id")
	username := fs.String("username", "", "username")
	roles := fs.String("roles", tenantauth.RoleUser, "comma-separated roles")
	algorithm := fs.String("algorithm", tenantauth.PasswordArgon2id, "argon2id or bcrypt")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *dsn == "" || strings.TrimSpace(*username) == "" {
		return errors.New("-dsn and -username are required")
	}

	scheme, err := newScheme(*algorithm)
	if err != nil {
		return err
	}
	plaintext, err := readPassword(in, out)
	if err != nil {
		return err
	}
	digest, err := password.NewHasher(password.NewPool(1), scheme).Hash(ctx, plaintext)
	if err != nil {
		return err
	}

	db, err := users.OpenPostgres(ctx, *dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	u := &tenantauth.User{
		ID:           uuid.NewString(),
		TenantID:     *tenantID,
		Username:     strings.TrimSpace(*username),
		PasswordHash: digest,
		Roles:        tenantauth.ParseRoles(*roles),
	}
	if err := users.NewPostgresRepository(db).Create(ctx, u); err != nil {
		return err
	}
	fmt.Fprintln(out, color.GreenString("created"), u.ID)
	return nil
}

func newScheme(algorithm string) (password.Scheme, error) {
	defaults := tenantauth.DefaultConfig().Password
	switch algorithm {
	case tenantauth.PasswordArgon2id:
		a, err := password.NewArgon2(password.Config{
			Memory:      defaults.Memory,
			Time:        defaults.Time,
			Parallelism: defaults.Parallelism,
			SaltLength:  defaults.SaltLength,
			KeyLength:   defaults.KeyLength,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case tenantauth.PasswordBcrypt:
		b, err := password.NewBcrypt(defaults.BcryptCost)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown algorithm %q", algorithm)
	}
}

// readPassword prompts twice without echo on a terminal and reads one line
// otherwise, so digests can be produced from scripts.
func readPassword(in *os.File, out io.Writer) (string, error) {
	fd := int(in.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return "", errors.New("empty password")
		}
		return line, nil
	}

	fmt.Fprint(out, "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	fmt.Fprint(out, "Repeat: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	if len(first) == 0 {
		return "", errors.New("empty password")
	}
	return string(first), nil
}
