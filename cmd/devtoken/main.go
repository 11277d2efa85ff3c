// Command devtoken mints a staff access token for local testing against
// the API.  Tokens are normally issued by the identity service.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/place-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	var (
		user    = flag.String("user", "", "staff user code (sub claim)")
		role    = flag.String("role", "ADMIN", "account type: ADMIN, SUPERVISOR or AGENT")
		company = flag.String("company", "", "company code")
		ttl     = flag.Duration("ttl", time.Hour, "token lifetime")
		secret  = flag.String("secret", os.Getenv("JWT_SECRET"), "HS256 secret, defaults to $JWT_SECRET")
	)
	flag.Parse()

	if *user == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -user and a secret are required")
		flag.Usage()
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(*secret, utils.StaffClaims{UserCode: *user, Role: *role, Company: *company}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "devtoken:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
