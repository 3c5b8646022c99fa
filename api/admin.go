package api

// AdminPathPrefix is where the entitlement stub mounts its admin API.
const AdminPathPrefix = "/admin"

// Admin request authentication headers. The signature is an ASN.1 ECDSA
// signature over SHA-256(path + body), base64 encoded.
const (
	AdminIDHeader        = "X-Admin-ID"
	AdminSignatureHeader = "X-Admin-Signature"
)

// AdminStatusResponse summarizes the stub's state.
type AdminStatusResponse struct {
	Systems  int `json:"systems"`
	RegCodes int `json:"regcodes"`
	Products int `json:"products"`
}

// AdminSystem is an announced system as listed by the admin API.
type AdminSystem struct {
	Login        string   `json:"login"`
	Hostname     string   `json:"hostname"`
	DistroTarget string   `json:"distro_target,omitempty"`
	Products     []string `json:"products"`
}

// AdminRegCodeRequest adds a registration code.
type AdminRegCodeRequest struct {
	RegCode string `json:"regcode"`
}
