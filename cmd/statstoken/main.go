// Command statstoken mints a site-scoped bearer token for GET /stats.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"eventpipe/utils"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "dashboard", "token subject")
	sites := flag.String("sites", "", "comma separated site ids, or * for all sites")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		log.Fatal("JWT_SECRET_KEY must be set")
	}

	var siteIDs []string
	for _, s := range strings.Split(*sites, ",") {
		if s = strings.TrimSpace(s); s != "" {
			siteIDs = append(siteIDs, s)
		}
	}
	if len(siteIDs) == 0 {
		log.Fatal("-sites is required")
	}

	token, err := utils.GenerateJWT([]byte(secret), *subject, siteIDs, *ttl)
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}
	fmt.Println(token)
}
