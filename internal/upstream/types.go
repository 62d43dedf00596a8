package upstream

// Study is a single study record extracted from the upstream registry.
// Title and organization fields are pointers because the upstream payload
// may omit any of them; absent values are stored as NULL, not defaulted.
type Study struct {
	ID               string
	Title            *string
	OrganizationName *string
	OrganizationType *string
}

// Page is one page of upstream results. An empty NextPageToken means the
// upstream has no further pages at this time.
type Page struct {
	Studies       []Study
	NextPageToken string
}

// Wire format of the upstream studies endpoint. Only the fields we consume
// are declared; everything else in the payload is ignored.
type pageEnvelope struct {
	Studies       []studyEnvelope `json:"studies"`
	NextPageToken string          `json:"nextPageToken"`
}

type studyEnvelope struct {
	ProtocolSection *protocolSection `json:"protocolSection"`
}

type protocolSection struct {
	IdentificationModule *identificationModule `json:"identificationModule"`
}

type identificationModule struct {
	NCTID        string        `json:"nctId"`
	BriefTitle   *string       `json:"briefTitle"`
	Organization *organization `json:"organization"`
}

type organization struct {
	FullName *string `json:"fullName"`
	Class    *string `json:"class"`
}
