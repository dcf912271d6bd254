package main

import (
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ncecere/usage_console/internal/auth"
	"github.com/ncecere/usage_console/internal/config"
)

// devtoken prints a bearer token accepted by a console running with
// auth.dev.enabled.
func main() {
	configFile := flag.String("config", "", "path to console.yaml")
	subject := flag.String("sub", "dev-user", "token subject")
	email := flag.String("email", "", "email claim")
	groups := flag.String("groups", "api-default", "comma separated groups, e.g. api-admin")
	ttl := flag.Duration("ttl", 0, "override auth.dev.token_ttl")
	flag.Parse()

	cfg, err := config.Load(config.Options{ConfigFile: *configFile})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if !cfg.Auth.Dev.Enabled {
		log.Fatalf("auth.dev.enabled is false; the server would reject dev tokens")
	}
	devCfg := cfg.Auth.Dev
	if *ttl > 0 {
		devCfg.TokenTTL = *ttl
	}

	tm, err := auth.NewDevTokenManager(devCfg)
	if err != nil {
		log.Fatalf("init dev tokens: %v", err)
	}
	var groupList []string
	for _, g := range strings.Split(*groups, ",") {
		if g = strings.TrimSpace(g); g != "" {
			groupList = append(groupList, g)
		}
	}
	token, exp, err := tm.Issue(auth.DevIdentity{
		Subject:  *subject,
		Username: *subject,
		Email:    *email,
		Groups:   groupList,
	})
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	log.Printf("token for %s expires %s", *subject, exp.Format(time.RFC3339))
	fmt.Println(token)
}
