package tool

import "fmt"

// ClientVersion is the version string reported to the intake API in the
// User-Agent header and in form_data["client_version"].
const ClientVersion = "1.2.0"

const clientName = "intake-go"

// UserAgent returns the User-Agent header value for outgoing requests.
func UserAgent() string {
	return fmt.Sprintf("%s/%s", clientName, ClientVersion)
}
