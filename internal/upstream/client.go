// Package upstream fetches study records from the ClinicalTrials-style
// registry API, one page at a time.
package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/AntonAks/TaskFromTal/internal/httpclient"
	"github.com/AntonAks/TaskFromTal/internal/logger"
)

// Client fetches pages of studies from the upstream registry. It performs a
// single request per call; retry policy belongs to the caller.
type Client struct {
	http     httpclient.Client
	endpoint string
}

// NewClient creates an upstream client for the given base endpoint,
// e.g. "https://clinicaltrials.gov/api/v2".
func NewClient(httpClient httpclient.Client, endpoint string) *Client {
	return &Client{
		http:     httpClient,
		endpoint: strings.TrimRight(endpoint, "/"),
	}
}

// FetchPage requests one page of studies. An empty pageToken requests the
// first page. Malformed entries (missing protocolSection,
// identificationModule or nctId) are dropped; a fully malformed page is a
// valid empty page, not an error.
func (c *Client) FetchPage(ctx context.Context, pageSize int, pageToken string) (*Page, error) {
	query := url.Values{}
	query.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		query.Set("pageToken", pageToken)
	}
	requestURL := fmt.Sprintf("%s/studies?%s", c.endpoint, query.Encode())

	body, err := c.http.Get(ctx, requestURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch studies page: %w", err)
	}

	var envelope pageEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse studies page: %w", err)
	}

	page := &Page{
		Studies:       make([]Study, 0, len(envelope.Studies)),
		NextPageToken: envelope.NextPageToken,
	}

	dropped := 0
	for _, entry := range envelope.Studies {
		study, ok := extractStudy(entry)
		if !ok {
			dropped++
			continue
		}
		page.Studies = append(page.Studies, study)
	}
	if dropped > 0 {
		logger.Debugf("dropped %d malformed upstream records", dropped)
	}

	return page, nil
}

// extractStudy flattens the nested upstream entry into a Study. Entries
// without an identification module or an id cannot be keyed and are dropped;
// a missing organization block only leaves the organization fields nil.
func extractStudy(entry studyEnvelope) (Study, bool) {
	if entry.ProtocolSection == nil || entry.ProtocolSection.IdentificationModule == nil {
		return Study{}, false
	}

	ident := entry.ProtocolSection.IdentificationModule
	if ident.NCTID == "" {
		return Study{}, false
	}

	study := Study{
		ID:    ident.NCTID,
		Title: ident.BriefTitle,
	}
	if ident.Organization != nil {
		study.OrganizationName = ident.Organization.FullName
		study.OrganizationType = ident.Organization.Class
	}
	return study, true
}
