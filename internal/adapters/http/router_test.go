package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/allumi/attribution-service/internal/adapters/security"
	"github.com/allumi/attribution-service/internal/application"
	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type memTouchpoints struct {
	rows []domain.Touchpoint
}

func (m *memTouchpoints) Append(_ context.Context, tp domain.Touchpoint) error {
	m.rows = append(m.rows, tp)
	return nil
}

func (m *memTouchpoints) GetByID(_ context.Context, touchpointID string) (domain.Touchpoint, error) {
	for _, tp := range m.rows {
		if tp.TouchpointID == touchpointID {
			return tp, nil
		}
	}
	return domain.Touchpoint{}, domain.ErrNotFound
}

func (m *memTouchpoints) ListCandidates(_ context.Context, q ports.TouchpointQuery) ([]domain.Touchpoint, error) {
	if q.IdentityID == "" && q.Email == "" {
		return nil, nil
	}
	var out []domain.Touchpoint
	for _, tp := range m.rows {
		if tp.AccountID != q.AccountID {
			continue
		}
		if (q.IdentityID != "" && tp.IdentityID == q.IdentityID) ||
			(q.Email != "" && tp.Email == q.Email) {
			out = append(out, tp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

type memIdentities struct {
	items map[string]domain.Identity
}

func (m *memIdentities) Create(_ context.Context, identity domain.Identity) error {
	m.items[identity.IdentityID] = identity
	return nil
}

func (m *memIdentities) GetByID(_ context.Context, identityID string) (domain.Identity, error) {
	identity, ok := m.items[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (m *memIdentities) ListByAnySignal(_ context.Context, accountID string, signals domain.IdentitySignals, _ int) ([]domain.Identity, error) {
	var out []domain.Identity
	for _, identity := range m.items {
		if identity.AccountID != accountID {
			continue
		}
		if (signals.Email != "" && identity.HasEmail(signals.Email)) ||
			(signals.Fingerprint != "" && identity.HasFingerprint(signals.Fingerprint)) {
			out = append(out, identity)
		}
	}
	return out, nil
}

func (m *memIdentities) AppendSignals(_ context.Context, identityID string, appendix ports.IdentitySignalAppend) (domain.Identity, error) {
	identity, ok := m.items[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	identity.Emails = append(identity.Emails, appendix.Emails...)
	identity.Fingerprints = append(identity.Fingerprints, appendix.Fingerprints...)
	m.items[identityID] = identity
	return identity, nil
}

type memConversions struct {
	items map[string]domain.Conversion
}

func (m *memConversions) Create(_ context.Context, conv domain.Conversion) error {
	m.items[conv.ConversionID] = conv
	return nil
}

func (m *memConversions) GetByID(_ context.Context, conversionID string) (domain.Conversion, error) {
	conv, ok := m.items[conversionID]
	if !ok {
		return domain.Conversion{}, domain.ErrNotFound
	}
	return conv, nil
}

func (m *memConversions) ApplyAttribution(_ context.Context, conversionID string, update ports.ConversionAttributionUpdate) error {
	conv, ok := m.items[conversionID]
	if !ok {
		return domain.ErrNotFound
	}
	if conv.AttributionState != domain.AttributionStatePending {
		return domain.ErrAlreadyAttributed
	}
	conv.AttributedTouchpointID = update.TouchpointID
	conv.AttributionMethod = update.Method
	confidence := update.Confidence
	conv.Confidence = &confidence
	conv.AttributionState = update.State
	m.items[conversionID] = conv
	return nil
}

func (m *memConversions) SetState(_ context.Context, conversionID, state string, _ time.Time) error {
	conv, ok := m.items[conversionID]
	if !ok {
		return domain.ErrNotFound
	}
	conv.AttributionState = state
	m.items[conversionID] = conv
	return nil
}

func (m *memConversions) ListByState(_ context.Context, state string, _ int) ([]domain.Conversion, error) {
	var out []domain.Conversion
	for _, conv := range m.items {
		if conv.AttributionState == state {
			out = append(out, conv)
		}
	}
	return out, nil
}

type memAttributions struct {
	rows map[string]domain.RevenueAttribution
}

func (m *memAttributions) Append(_ context.Context, row domain.RevenueAttribution) error {
	key := row.WriteKey()
	if _, ok := m.rows[key]; ok {
		return nil
	}
	m.rows[key] = row
	return nil
}

func (m *memAttributions) ListByConversion(_ context.Context, conversionID string) ([]domain.RevenueAttribution, error) {
	var out []domain.RevenueAttribution
	for _, row := range m.rows {
		if row.ConversionID == conversionID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memAttributions) SumByChannel(_ context.Context, accountID, model string, _, _ time.Time) ([]ports.ChannelRevenue, error) {
	sums := map[string]*ports.ChannelRevenue{}
	for _, row := range m.rows {
		if row.AccountID != accountID || row.Model != model {
			continue
		}
		agg, ok := sums[row.Channel]
		if !ok {
			agg = &ports.ChannelRevenue{Channel: row.Channel, Model: model}
			sums[row.Channel] = agg
		}
		agg.AmountCents += row.AmountCents
		agg.Conversions++
	}
	var out []ports.ChannelRevenue
	for _, agg := range sums {
		out = append(out, *agg)
	}
	return out, nil
}

func newTestServer(t *testing.T) (http.Handler, *security.JWTVerifier) {
	t.Helper()
	verifier, err := security.NewEphemeralJWTVerifier("test-key")
	if err != nil {
		t.Fatalf("ephemeral verifier: %v", err)
	}
	svc := application.NewService(application.Dependencies{
		Touchpoints:  &memTouchpoints{},
		Identities:   &memIdentities{items: map[string]domain.Identity{}},
		Conversions:  &memConversions{items: map[string]domain.Conversion{}},
		Attributions: &memAttributions{rows: map[string]domain.RevenueAttribution{}},
	})
	return NewRouter(NewHandler(svc, verifier)), verifier
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doRequest(t *testing.T, router http.Handler, method, target, token, body string) (int, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "contract-test/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope: %v (body %q)", err, rec.Body.String())
	}
	return rec.Code, env
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		code, env := doRequest(t, router, http.MethodGet, path, "", "")
		if code != http.StatusOK || env.Status != "success" {
			t.Fatalf("%s: code=%d status=%q", path, code, env.Status)
		}
	}
}

func TestRecordTouchpointIsPublic(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	code, env := doRequest(t, router, http.MethodPost, "/attribution/v1/touchpoints", "",
		`{"account_id":"acct_1","email":"buyer@example.com","utm":{"utm_source":"youtube","utm_campaign":"launch"}}`)
	if code != http.StatusCreated {
		t.Fatalf("code = %d, body = %+v", code, env)
	}

	var res application.RecordTouchpointResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if res.TouchpointID == "" || res.IdentityID == "" || res.CookieID == "" {
		t.Fatalf("incomplete response: %+v", res)
	}
}

func TestTouchpointRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	code, env := doRequest(t, router, http.MethodPost, "/attribution/v1/touchpoints", "",
		`{"account_id":"acct_1","bogus_field":true}`)
	if code != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("code=%d envelope=%+v", code, env)
	}
}

func TestProtectedRoutesRequireServiceToken(t *testing.T) {
	t.Parallel()

	router, _ := newTestServer(t)
	code, env := doRequest(t, router, http.MethodGet, "/attribution/v1/reports/channels?account_id=acct_1", "", "")
	if code != http.StatusUnauthorized || env.Code != "UNAUTHORIZED" {
		t.Fatalf("missing token: code=%d envelope=%+v", code, env)
	}

	code, env = doRequest(t, router, http.MethodGet, "/attribution/v1/reports/channels?account_id=acct_1", "not-a-jwt", "")
	if code != http.StatusUnauthorized || env.Code != "UNAUTHORIZED" {
		t.Fatalf("garbage token: code=%d envelope=%+v", code, env)
	}
}

func TestConversionFlowOverHTTP(t *testing.T) {
	t.Parallel()

	router, verifier := newTestServer(t)
	token, err := verifier.Mint("billing-service", "internal", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	code, env := doRequest(t, router, http.MethodPost, "/attribution/v1/touchpoints", "",
		`{"account_id":"acct_1","short_id":"go-abc","email":"buyer@example.com","utm":{"utm_source":"youtube"}}`)
	if code != http.StatusCreated {
		t.Fatalf("seed touchpoint: code=%d envelope=%+v", code, env)
	}

	code, env = doRequest(t, router, http.MethodPost, "/attribution/v1/conversions", token,
		`{"account_id":"acct_1","kind":"purchase","amount_cents":9900,"signals":{"direct_link_id":"go-abc","email":"buyer@example.com"}}`)
	if code != http.StatusCreated {
		t.Fatalf("record conversion: code=%d envelope=%+v", code, env)
	}

	var res application.RecordConversionResponse
	if err := json.Unmarshal(env.Data, &res); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if res.AttributionState != domain.AttributionStateAttributed || res.Method != domain.MethodDirectLink {
		t.Fatalf("resolution = %+v", res)
	}

	code, env = doRequest(t, router, http.MethodGet, "/attribution/v1/conversions/"+res.ConversionID, token, "")
	if code != http.StatusOK {
		t.Fatalf("get conversion: code=%d envelope=%+v", code, env)
	}
}

func TestChannelReportRejectsUnknownModel(t *testing.T) {
	t.Parallel()

	router, verifier := newTestServer(t)
	token, err := verifier.Mint("reporting-service", "internal", time.Minute)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}

	code, env := doRequest(t, router, http.MethodGet,
		"/attribution/v1/reports/channels?account_id=acct_1&model=time_decay", token, "")
	if code != http.StatusBadRequest || env.Code != "VALIDATION_ERROR" {
		t.Fatalf("code=%d envelope=%+v", code, env)
	}
}
