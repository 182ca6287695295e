// Command ipsctl is a smoke-test client for the dashboard authentication API.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ---- config/token store ----

type tokenFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func cfgDir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "ips")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "ips")
}

func tokenPath() string { return filepath.Join(cfgDir(), "token.json") }

func saveToken(tok string, exp time.Time) error {
	if err := os.MkdirAll(cfgDir(), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(tokenPath(), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenFile{AccessToken: tok, ExpiresAt: exp})
}

var errLoginRequired = errors.New("no valid token (login required)")

func loadToken() (string, error) {
	b, err := os.ReadFile(tokenPath())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", errLoginRequired
		}
		return "", err
	}
	var tf tokenFile
	if err := json.Unmarshal(b, &tf); err != nil {
		return "", err
	}
	if tf.AccessToken == "" || time.Now().After(tf.ExpiresAt) {
		return "", errLoginRequired
	}
	return tf.AccessToken, nil
}

func removeToken() error {
	err := os.Remove(tokenPath())
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// tokenExpiry reads exp without verifying the signature; the server does that.
func tokenExpiry(tok string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(time.Hour)
}

// ---- utils ----

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

const usageText = `ipsctl CLI
Usage:
  ipsctl -addr URL <cmd> [args]

Commands:
  version
  signup  -u <username> -p <password> -role manufacturer|vendor [-name <display name>]   (saves token)
  login   -u <username> -p <password>                                                   (saves token)
  me
  logout
`

// ---- main ----

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run dispatches subcommands and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	gfs := flag.NewFlagSet("ipsctl", flag.ContinueOnError)
	gfs.SetOutput(stderr)
	addr := gfs.String("addr", "http://localhost:4000", "server base URL")
	timeout := gfs.Duration("timeout", 30*time.Second, "request timeout")
	gfs.Usage = func() { fmt.Fprint(stderr, usageText) }
	if err := gfs.Parse(args); err != nil {
		return 2
	}
	if gfs.NArg() < 1 {
		gfs.Usage()
		return 2
	}
	cmd, rest := gfs.Arg(0), gfs.Args()[1:]

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	cl := newClient(*addr)

	fail := func(err error) int {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}

	switch cmd {
	case "version":
		fmt.Fprintf(stdout, "ipsctl %s (%s)\n", version, buildDate)

	case "signup":
		fs := flag.NewFlagSet("signup", flag.ContinueOnError)
		fs.SetOutput(stderr)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		role := fs.String("role", "", "manufacturer or vendor")
		name := fs.String("name", "", "display name")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *u == "" || *p == "" || *role == "" {
			fmt.Fprintln(stderr, "need -u, -p and -role")
			return 1
		}
		id, err := cl.signup(ctx, *u, *p, *role, *name)
		if err != nil {
			return fail(err)
		}
		if err := saveToken(cl.token, tokenExpiry(cl.token)); err != nil {
			return fail(err)
		}
		printJSON(stdout, id)

	case "login":
		fs := flag.NewFlagSet("login", flag.ContinueOnError)
		fs.SetOutput(stderr)
		u := fs.String("u", "", "username")
		p := fs.String("p", "", "password")
		if err := fs.Parse(rest); err != nil {
			return 2
		}
		if *u == "" || *p == "" {
			fmt.Fprintln(stderr, "need -u and -p")
			return 1
		}
		id, err := cl.login(ctx, *u, *p)
		if err != nil {
			return fail(err)
		}
		if err := saveToken(cl.token, tokenExpiry(cl.token)); err != nil {
			return fail(err)
		}
		printJSON(stdout, id)

	case "me":
		tok, err := loadToken()
		if err != nil {
			return fail(err)
		}
		cl.token = tok
		id, err := cl.me(ctx)
		if isStatus(err, http.StatusUnauthorized) {
			// сервер больше не принимает токен
			_ = removeToken()
			return fail(errLoginRequired)
		}
		if err != nil {
			return fail(err)
		}
		printJSON(stdout, id)

	case "logout":
		if tok, err := loadToken(); err == nil {
			cl.token = tok
		}
		if err := cl.logout(ctx); err != nil {
			return fail(err)
		}
		if err := removeToken(); err != nil {
			return fail(err)
		}
		fmt.Fprintln(stdout, "ok")

	default:
		gfs.Usage()
		return 2
	}
	return 0
}
