// Gatewayd is the authentication and admission gateway in front of the
// seasonality API.
//
// Usage:
//
//	# Serve with gatewayd.yaml and GATEWAY_* environment overrides
//	gatewayd serve
//
//	# Create the credential tables
//	gatewayd migrate --config /etc/gatewayd/config.yaml
//
//	# Issue an API key; the secret is printed once
//	gatewayd keys create --principal user-abc-123 --permission seasonality:read
//
//	# Mint a token pair for a principal
//	gatewayd token issue --subject user-abc-123
package main

func main() {
	Execute()
}
