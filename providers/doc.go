// Package providers contains the shared connector building blocks
// (BaseConnector, the OAuth2 exchange) and the built-in adapters in its
// subpackages: jira, confluence, salesforce, postgres, and the devkit
// test helpers.
package providers
