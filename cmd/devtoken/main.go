// Command devtoken mints a bearer token for local testing. The secret comes
// from JWT_SECRET (or .env) unless --secret is given.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"neon/internal/domain/auth"
	"neon/internal/platform/config"
)

func main() {
	var (
		userID     = pflag.String("user", "", "user id (required)")
		tenantID   = pflag.String("tenant", "", "tenant id (required)")
		employeeID = pflag.String("employee", "", "employee id linked to the user")
		role       = pflag.String("role", auth.RoleEmployee, "role name")
		level      = pflag.Int("level", 0, "hierarchy level")
		ttl        = pflag.Duration("ttl", 12*time.Hour, "token lifetime")
		secret     = pflag.String("secret", "", "signing secret, overrides JWT_SECRET")
	)
	pflag.Parse()

	if *userID == "" || *tenantID == "" {
		fmt.Fprintln(os.Stderr, "devtoken: --user and --tenant are required")
		pflag.Usage()
		os.Exit(2)
	}
	if !auth.IsKnownRole(*role) {
		fmt.Fprintf(os.Stderr, "devtoken: unknown role %q\n", *role)
		os.Exit(2)
	}

	key := *secret
	if key == "" {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "devtoken: config: %v\n", err)
			os.Exit(1)
		}
		key = cfg.JWTSecret
	}
	if key == "" {
		fmt.Fprintln(os.Stderr, "devtoken: no signing secret; set JWT_SECRET or pass --secret")
		os.Exit(2)
	}

	token, err := auth.GenerateToken(key, auth.Claims{
		UserID:         *userID,
		TenantID:       *tenantID,
		EmployeeID:     *employeeID,
		RoleName:       *role,
		HierarchyLevel: *level,
	}, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "devtoken: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
