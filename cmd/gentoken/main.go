// Command gentoken prints credentials for local development:
// a fresh secret key, or an access token for the actor signed with the key.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/courier/internal/models"
	"github.com/nkiryanov/courier/internal/service/auth"
)

const SecretKeyBytesLen = 32

func main() {
	if err := run(os.Stdout, os.Getenv, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(out io.Writer, getenv func(string) string, args []string) error {
	var (
		newSecret bool
		secretKey = getenv("SECRET_KEY")
		actor     models.Actor
		ttl       time.Duration
	)

	fs := pflag.NewFlagSet("gentoken", pflag.ContinueOnError)
	fs.BoolVar(&newSecret, "new-secret", false, "Print new random secret key and exit")
	fs.StringVarP(&secretKey, "secret-key", "s", secretKey, "Secret key to sign token with (default $SECRET_KEY)")
	fs.StringVar(&actor.Ref, "ref", "", "Actor reference")
	fs.StringVar(&actor.Role, "role", models.RoleCustomer, "Actor role (customer, driver, operator)")
	fs.DurationVar(&ttl, "ttl", 0, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if newSecret {
		secret, err := generateSecret()
		if err != nil {
			return fmt.Errorf("error while generating secret key: %w", err)
		}
		_, err = fmt.Fprintln(out, secret)
		return err
	}

	if actor.Ref == "" {
		return errors.New("actor ref is required")
	}

	tm, err := auth.NewTokenManager(auth.Config{SecretKey: secretKey, AccessTTL: ttl})
	if err != nil {
		return err
	}
	token, _, err := tm.Issue(actor)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func generateSecret() (string, error) {
	b := make([]byte, SecretKeyBytesLen)

	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
