package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/exstem-cbt/internal/clock"
	"github.com/stemsi/exstem-cbt/internal/config"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/service"
)

// admin-token issues a signed operator token for the admin API.
func main() {
	var (
		adminID int
		perms   string
		ttl     time.Duration
	)
	flag.IntVar(&adminID, "id", 1, "Operator ID embedded in the token")
	flag.StringVar(&perms, "perms", "all", "Comma-separated permissions, or 'all'")
	flag.DurationVar(&ttl, "ttl", 0, "Token lifetime (default JWT_EXPIRY)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}
	if ttl > 0 {
		cfg.JWTExpiry = ttl
	}

	granted, err := parsePermissions(perms)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	authService := service.NewAuthService(cfg, nil, nil, clock.System{})
	token, err := authService.GenerateAdminToken(adminID, granted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Permissions: %s\nExpires in: %s\n", strings.Join(granted, ", "), cfg.JWTExpiry)
	fmt.Println(token)
}

func parsePermissions(raw string) ([]string, error) {
	if raw == "all" {
		out := make([]string, len(model.AllPermissions))
		for i, p := range model.AllPermissions {
			out[i] = string(p)
		}
		return out, nil
	}

	var out []string
	for _, s := range strings.Split(raw, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		p, ok := model.ParsePermission(s)
		if !ok {
			return nil, fmt.Errorf("unknown permission %q", s)
		}
		out = append(out, string(p))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no permissions given")
	}
	return out, nil
}
