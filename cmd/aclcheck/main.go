package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/IMQS/authportal"
)

// aclcheck answers "what would the portal require for this request?", so that
// an operator can audit rule ordering without standing up the whole portal.
func main() {
	aclFile := flag.String("acl", "", "Path to the ACL JSON document")
	domain := flag.String("domain", "", "Target domain of the request")
	path := flag.String("path", "/", "Resource path of the request")
	method := flag.String("method", "GET", "HTTP method of the request")
	username := flag.String("username", "", "Subject username (empty for anonymous)")
	groups := flag.String("groups", "", "Comma-separated subject groups")
	ip := flag.String("ip", "", "Client IP address")
	flag.Parse()

	if *aclFile == "" || *domain == "" {
		fmt.Println("Usage: aclcheck -acl <acl.json> -domain <host> [-path /] [-method GET] [-username u] [-groups a,b] [-ip 1.2.3.4]")
		os.Exit(1)
	}

	input, err := authportal.LoadACLFile(*aclFile)
	if err != nil {
		fmt.Printf("Error loading ACL: %v\n", err)
		os.Exit(1)
	}
	config, errors := authportal.NormalizeACL(input)
	for _, e := range errors {
		fmt.Printf("Warning: %v\n", e)
	}

	ctx := &authportal.RequestContext{
		TargetDomain: *domain,
		Path:         *path,
		Method:       *method,
	}
	if *username != "" {
		ctx.Subject.Username = *username
	}
	if *groups != "" {
		ctx.Subject.Groups = strings.Split(*groups, ",")
	}
	if *ip != "" {
		ctx.ClientAddress = net.ParseIP(*ip)
		if ctx.ClientAddress == nil {
			fmt.Printf("Invalid IP address '%v'\n", *ip)
			os.Exit(1)
		}
	}

	engine := authportal.NewPolicyEngine(config)
	fmt.Printf("policy: %v\n", engine.Evaluate(ctx))
}
