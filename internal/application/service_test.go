package application

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/allumi/attribution-service/internal/domain"
	"github.com/allumi/attribution-service/internal/ports"
)

type fakeTouchpointRepo struct {
	mu   sync.Mutex
	rows []domain.Touchpoint
}

func (f *fakeTouchpointRepo) Append(_ context.Context, tp domain.Touchpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, tp)
	return nil
}

func (f *fakeTouchpointRepo) GetByID(_ context.Context, touchpointID string) (domain.Touchpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tp := range f.rows {
		if tp.TouchpointID == touchpointID {
			return tp, nil
		}
	}
	return domain.Touchpoint{}, domain.ErrNotFound
}

func (f *fakeTouchpointRepo) ListCandidates(_ context.Context, q ports.TouchpointQuery) ([]domain.Touchpoint, error) {
	if q.IdentityID == "" && q.Email == "" {
		return nil, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Touchpoint
	for _, tp := range f.rows {
		if tp.AccountID != q.AccountID {
			continue
		}
		if tp.OccurredAt.Before(q.Since) || tp.OccurredAt.After(q.Until) {
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

type fakeIdentityRepo struct {
	mu    sync.Mutex
	items map[string]domain.Identity
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{items: map[string]domain.Identity{}}
}

func (f *fakeIdentityRepo) Create(_ context.Context, identity domain.Identity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[identity.IdentityID]; ok {
		return domain.ErrConflict
	}
	f.items[identity.IdentityID] = identity
	return nil
}

func (f *fakeIdentityRepo) GetByID(_ context.Context, identityID string) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.items[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return identity, nil
}

func (f *fakeIdentityRepo) ListByAnySignal(_ context.Context, accountID string, signals domain.IdentitySignals, limit int) ([]domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Identity
	for _, identity := range f.items {
		if identity.AccountID != accountID {
			continue
		}
		if (signals.Email != "" && identity.HasEmail(signals.Email)) ||
			(signals.Phone != "" && identity.HasPhone(signals.Phone)) ||
			(signals.Fingerprint != "" && identity.HasFingerprint(signals.Fingerprint)) ||
			(signals.UserID != "" && identity.UserID == signals.UserID) {
			out = append(out, identity)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func unionStrings(existing, add []string) []string {
	for _, v := range add {
		seen := false
		for _, e := range existing {
			if e == v {
				seen = true
				break
			}
		}
		if !seen {
			existing = append(existing, v)
		}
	}
	return existing
}

func (f *fakeIdentityRepo) AppendSignals(_ context.Context, identityID string, appendix ports.IdentitySignalAppend) (domain.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	identity, ok := f.items[identityID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	identity.Emails = unionStrings(identity.Emails, appendix.Emails)
	identity.Phones = unionStrings(identity.Phones, appendix.Phones)
	identity.Fingerprints = unionStrings(identity.Fingerprints, appendix.Fingerprints)
	if appendix.UserID != "" {
		identity.UserID = appendix.UserID
	}
	if appendix.SessionID != "" {
		identity.SessionID = appendix.SessionID
	}
	if appendix.IPAddress != "" {
		identity.IPAddress = appendix.IPAddress
	}
	if appendix.UserAgent != "" {
		identity.UserAgent = appendix.UserAgent
	}
	identity.LastSeenAt = appendix.SeenAt
	f.items[identityID] = identity
	return identity, nil
}

type fakeConversionRepo struct {
	mu    sync.Mutex
	items map[string]domain.Conversion
}

func newFakeConversionRepo() *fakeConversionRepo {
	return &fakeConversionRepo{items: map[string]domain.Conversion{}}
}

func (f *fakeConversionRepo) Create(_ context.Context, conv domain.Conversion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[conv.ConversionID]; ok {
		return domain.ErrConflict
	}
	f.items[conv.ConversionID] = conv
	return nil
}

func (f *fakeConversionRepo) GetByID(_ context.Context, conversionID string) (domain.Conversion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.items[conversionID]
	if !ok {
		return domain.Conversion{}, domain.ErrNotFound
	}
	return conv, nil
}

func (f *fakeConversionRepo) ApplyAttribution(_ context.Context, conversionID string, update ports.ConversionAttributionUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.items[conversionID]
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
	f.items[conversionID] = conv
	return nil
}

func (f *fakeConversionRepo) SetState(_ context.Context, conversionID, state string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.items[conversionID]
	if !ok {
		return domain.ErrNotFound
	}
	conv.AttributionState = state
	f.items[conversionID] = conv
	return nil
}

func (f *fakeConversionRepo) ListByState(_ context.Context, state string, limit int) ([]domain.Conversion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Conversion
	for _, conv := range f.items {
		if conv.AttributionState == state {
			out = append(out, conv)
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeAttributionRepo struct {
	mu         sync.Mutex
	rows       map[string]domain.RevenueAttribution
	failModels map[string]bool
}

func newFakeAttributionRepo() *fakeAttributionRepo {
	return &fakeAttributionRepo{rows: map[string]domain.RevenueAttribution{}, failModels: map[string]bool{}}
}

func (f *fakeAttributionRepo) Append(_ context.Context, row domain.RevenueAttribution) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failModels[row.Model] {
		return errors.New("insert failed")
	}
	key := row.WriteKey()
	if _, ok := f.rows[key]; ok {
		return nil
	}
	f.rows[key] = row
	return nil
}

func (f *fakeAttributionRepo) ListByConversion(_ context.Context, conversionID string) ([]domain.RevenueAttribution, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RevenueAttribution
	for _, row := range f.rows {
		if row.ConversionID == conversionID {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Model < out[j].Model })
	return out, nil
}

func (f *fakeAttributionRepo) SumByChannel(_ context.Context, accountID, model string, _, _ time.Time) ([]ports.ChannelRevenue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sums := map[string]*ports.ChannelRevenue{}
	for _, row := range f.rows {
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

type fakeIdempotencyRepo struct {
	mu    sync.Mutex
	items map[string]ports.IdempotencyRecord
}

func newFakeIdempotencyRepo() *fakeIdempotencyRepo {
	return &fakeIdempotencyRepo{items: map[string]ports.IdempotencyRecord{}}
}

func (f *fakeIdempotencyRepo) Get(_ context.Context, key string) (*ports.IdempotencyRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.items[key]
	if !ok {
		return nil, nil
	}
	out := rec
	return &out, nil
}

func (f *fakeIdempotencyRepo) Reserve(_ context.Context, key, requestHash string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.items[key]; ok {
		return domain.ErrConflict
	}
	f.items[key] = ports.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: "PENDING", ExpiresAt: expiresAt}
	return nil
}

func (f *fakeIdempotencyRepo) Complete(_ context.Context, key string, responseCode int, responseBody []byte, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.items[key]
	if !ok {
		return domain.ErrNotFound
	}
	rec.Status = "COMPLETED"
	rec.ResponseCode = responseCode
	rec.ResponseBody = responseBody
	rec.UpdatedAt = at
	f.items[key] = rec
	return nil
}

type fakeOutbox struct {
	mu     sync.Mutex
	events []ports.OutboxEvent
}

func (f *fakeOutbox) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *fakeOutbox) ClaimUnpublished(context.Context, int, string, time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}
func (f *fakeOutbox) MarkPublished(context.Context, uuid.UUID, string, time.Time) error { return nil }
func (f *fakeOutbox) MarkFailed(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}
func (f *fakeOutbox) MarkDeadLettered(context.Context, uuid.UUID, string, string, time.Time) error {
	return nil
}

func (f *fakeOutbox) eventTypes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.EventType)
	}
	return out
}

type fakeDedupStore struct {
	mu    sync.Mutex
	items map[string]bool
}

func newFakeDedupStore() *fakeDedupStore { return &fakeDedupStore{items: map[string]bool{}} }

func (f *fakeDedupStore) IsDuplicate(_ context.Context, eventID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.items[eventID], nil
}

func (f *fakeDedupStore) MarkProcessed(_ context.Context, eventID string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[eventID] = true
	return nil
}

type fakeRateLimitStore struct {
	mu     sync.Mutex
	counts map[string]int64
}

func newFakeRateLimitStore() *fakeRateLimitStore {
	return &fakeRateLimitStore{counts: map[string]int64{}}
}

func (f *fakeRateLimitStore) Hit(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

type fixture struct {
	svc          *Service
	touchpoints  *fakeTouchpointRepo
	identities   *fakeIdentityRepo
	conversions  *fakeConversionRepo
	attributions *fakeAttributionRepo
	idempotency  *fakeIdempotencyRepo
	outbox       *fakeOutbox
	dedup        *fakeDedupStore
	rates        *fakeRateLimitStore
}

func newFixture() *fixture {
	f := &fixture{
		touchpoints:  &fakeTouchpointRepo{},
		identities:   newFakeIdentityRepo(),
		conversions:  newFakeConversionRepo(),
		attributions: newFakeAttributionRepo(),
		idempotency:  newFakeIdempotencyRepo(),
		outbox:       &fakeOutbox{},
		dedup:        newFakeDedupStore(),
		rates:        newFakeRateLimitStore(),
	}
	f.svc = NewService(Dependencies{
		Config: Config{
			TrackRateThreshold: 3,
			TrackRateWindow:    time.Minute,
		},
		Touchpoints:  f.touchpoints,
		Identities:   f.identities,
		Conversions:  f.conversions,
		Attributions: f.attributions,
		Idempotency:  f.idempotency,
		Outbox:       f.outbox,
		Dedup:        f.dedup,
		RateLimits:   f.rates,
	})
	return f
}

func (f *fixture) seedTouchpoint(t *testing.T, tp domain.Touchpoint) domain.Touchpoint {
	t.Helper()
	if tp.TouchpointID == "" {
		tp.TouchpointID = "tp_" + uuid.NewString()
	}
	if err := f.touchpoints.Append(context.Background(), tp); err != nil {
		t.Fatalf("seed touchpoint: %v", err)
	}
	return tp
}

func TestRecordTouchpointCreatesIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.svc.RecordTouchpoint(context.Background(), RecordTouchpointRequest{
		AccountID: "acct_1",
		Email:     "Buyer@Example.com",
		UTM:       domain.UTMParams{Source: "youtube", Campaign: "launch"},
		Headers:   FingerprintHeaders{ForwardedFor: "203.0.113.4", UserAgent: "Mozilla/5.0"},
	})
	if err != nil {
		t.Fatalf("record touchpoint: %v", err)
	}
	if res.TouchpointID == "" || res.IdentityID == "" {
		t.Fatalf("missing ids in response: %+v", res)
	}
	if res.Fingerprint == "" || !strings.HasPrefix(res.Fingerprint, "srv_") {
		t.Fatalf("expected derived server fingerprint, got %q", res.Fingerprint)
	}
	if res.CookieID == "" {
		t.Fatalf("expected generated cookie id")
	}

	identity, err := f.identities.GetByID(context.Background(), res.IdentityID)
	if err != nil {
		t.Fatalf("identity not created: %v", err)
	}
	if !identity.HasEmail("buyer@example.com") {
		t.Fatalf("email not normalized into identity: %+v", identity)
	}
	if got := f.outbox.eventTypes(); len(got) != 1 || got[0] != "attribution.touchpoint.recorded" {
		t.Fatalf("outbox events = %v", got)
	}
}

func TestRecordTouchpointMergesIntoExistingIdentity(t *testing.T) {
	t.Parallel()

	f := newFixture()
	first, err := f.svc.RecordTouchpoint(context.Background(), RecordTouchpointRequest{
		AccountID: "acct_1",
		Email:     "buyer@example.com",
		Headers:   FingerprintHeaders{ForwardedFor: "203.0.113.4", UserAgent: "Mozilla/5.0"},
	})
	if err != nil {
		t.Fatalf("first touchpoint: %v", err)
	}

	second, err := f.svc.RecordTouchpoint(context.Background(), RecordTouchpointRequest{
		AccountID:   "acct_1",
		Email:       "buyer@example.com",
		Fingerprint: "fp-new",
		Headers:     FingerprintHeaders{ForwardedFor: "198.51.100.7", UserAgent: "Mozilla/5.0"},
	})
	if err != nil {
		t.Fatalf("second touchpoint: %v", err)
	}
	if second.IdentityID != first.IdentityID {
		t.Fatalf("expected merge into %s, got %s", first.IdentityID, second.IdentityID)
	}

	identity, _ := f.identities.GetByID(context.Background(), first.IdentityID)
	if !identity.HasFingerprint("fp-new") {
		t.Fatalf("new evidence not unioned: %+v", identity)
	}
}

func TestRecordTouchpointRateLimited(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := RecordTouchpointRequest{
		AccountID: "acct_1",
		Email:     "buyer@example.com",
		Headers:   FingerprintHeaders{ForwardedFor: "203.0.113.4", UserAgent: "Mozilla/5.0"},
	}
	for i := 0; i < 3; i++ {
		if _, err := f.svc.RecordTouchpoint(context.Background(), req); err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
	}
	if _, err := f.svc.RecordTouchpoint(context.Background(), req); !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("expected rate limit, got %v", err)
	}
}

func TestRecordConversionDirectLinkWins(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		ShortID:    "go-abc",
		UTM:        domain.UTMParams{Source: "youtube", Campaign: "launch"},
		OccurredAt: at.Add(-2 * time.Hour),
	})

	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		IdentityID:  "id_1",
		Kind:        "purchase",
		AmountCents: 9900,
		Signals:     ConversionSignals{DirectLinkID: "go-abc"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if res.AttributionState != domain.AttributionStateAttributed {
		t.Fatalf("state = %s", res.AttributionState)
	}
	if res.Method != domain.MethodDirectLink || res.Confidence == nil || *res.Confidence != 95 {
		t.Fatalf("got %s/%v, want direct_link/95", res.Method, res.Confidence)
	}

	rows, _ := f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 3 {
		t.Fatalf("revenue rows = %d, want one per default model", len(rows))
	}
	for _, row := range rows {
		if row.AmountCents != 9900 {
			t.Fatalf("single-touch row should carry full amount: %+v", row)
		}
	}
}

func TestRecordConversionUnattributedWithoutCandidates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		Kind:        "signup",
		AmountCents: 0,
		Signals:     ConversionSignals{Email: "nobody@example.com"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if res.AttributionState != domain.AttributionStateUnattributed {
		t.Fatalf("state = %s", res.AttributionState)
	}
	if res.Confidence == nil || *res.Confidence != 0 {
		t.Fatalf("confidence = %v, want explicit 0", res.Confidence)
	}

	rows, _ := f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 0 {
		t.Fatalf("unattributed conversion must write no revenue rows, got %d", len(rows))
	}
	types := f.outbox.eventTypes()
	if len(types) == 0 || types[len(types)-1] != "attribution.conversion.unattributed" {
		t.Fatalf("outbox events = %v", types)
	}
}

func TestRecordConversionIdempotencyReplay(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := RecordConversionRequest{
		AccountID:   "acct_1",
		Kind:        "signup",
		AmountCents: 0,
		Signals:     ConversionSignals{Email: "nobody@example.com"},
	}

	first, err := f.svc.RecordConversion(context.Background(), req, "idem-1")
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := f.svc.RecordConversion(context.Background(), req, "idem-1")
	if err != nil {
		t.Fatalf("replay call: %v", err)
	}
	if second.ConversionID != first.ConversionID {
		t.Fatalf("replay created a new conversion: %s vs %s", second.ConversionID, first.ConversionID)
	}
	if len(f.conversions.items) != 1 {
		t.Fatalf("conversions stored = %d, want 1", len(f.conversions.items))
	}
}

func TestRecordConversionIdempotencyKeyReuseRejected(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := RecordConversionRequest{
		AccountID: "acct_1",
		Kind:      "signup",
		Signals:   ConversionSignals{Email: "nobody@example.com"},
	}
	if _, err := f.svc.RecordConversion(context.Background(), req, "idem-1"); err != nil {
		t.Fatalf("first call: %v", err)
	}

	req.AmountCents = 500
	if _, err := f.svc.RecordConversion(context.Background(), req, "idem-1"); !errors.Is(err, domain.ErrIdempotencyConflict) {
		t.Fatalf("expected idempotency conflict, got %v", err)
	}
}

func TestRecordConversionUpstreamEventDedup(t *testing.T) {
	t.Parallel()

	f := newFixture()
	req := RecordConversionRequest{
		AccountID:       "acct_1",
		Kind:            "purchase",
		AmountCents:     1000,
		UpstreamEventID: "evt_stripe_1",
		Signals:         ConversionSignals{Email: "nobody@example.com"},
	}
	if _, err := f.svc.RecordConversion(context.Background(), req, ""); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	res, err := f.svc.RecordConversion(context.Background(), req, "")
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if !res.Duplicate {
		t.Fatalf("expected duplicate verdict on redelivery")
	}
	if len(f.conversions.items) != 1 {
		t.Fatalf("conversions stored = %d, want 1", len(f.conversions.items))
	}
}

func TestRecordConversionRenewalCreditsSubscription(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	// Even with an attributable journey present, a renewal never re-runs
	// acquisition attribution.
	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		UTM:        domain.UTMParams{Source: "youtube"},
		OccurredAt: at.Add(-time.Hour),
	})

	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		IdentityID:  "id_1",
		Kind:        "renewal",
		AmountCents: 4900,
	}, "")
	if err != nil {
		t.Fatalf("record renewal: %v", err)
	}
	if res.Method != domain.ModelRecurring || res.AttributionState != domain.AttributionStateAttributed {
		t.Fatalf("got %s/%s", res.Method, res.AttributionState)
	}

	rows, _ := f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 1 {
		t.Fatalf("rows = %d, want single recurring row", len(rows))
	}
	if rows[0].Channel != domain.RecurringChannel || rows[0].AmountCents != 4900 {
		t.Fatalf("recurring row wrong: %+v", rows[0])
	}
}

func TestPartialWriteMarksIncompleteAndReconcileRepairs(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		SessionID:  "sess-1",
		UTM:        domain.UTMParams{Source: "youtube"},
		OccurredAt: at.Add(-time.Hour),
	})

	f.attributions.failModels[domain.ModelLinear] = true
	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		IdentityID:  "id_1",
		Kind:        "purchase",
		AmountCents: 9000,
		Signals:     ConversionSignals{SessionID: "sess-1"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if res.AttributionState != domain.AttributionStateIncomplete {
		t.Fatalf("state = %s, want incomplete after partial write", res.AttributionState)
	}
	rows, _ := f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 2 {
		t.Fatalf("rows after partial write = %d, want 2", len(rows))
	}

	f.attributions.failModels = map[string]bool{}
	rec, err := f.svc.Reconcile(context.Background(), res.ConversionID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.State != domain.AttributionStateAttributed {
		t.Fatalf("reconciled state = %s", rec.State)
	}

	rows, _ = f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 3 {
		t.Fatalf("rows after repair = %d, want 3", len(rows))
	}

	// Repair must preserve the original decision, not re-score.
	conv, _ := f.conversions.GetByID(context.Background(), res.ConversionID)
	if conv.AttributionMethod != domain.MethodSession || conv.Confidence == nil || *conv.Confidence != 85 {
		t.Fatalf("stored decision changed: %s/%v", conv.AttributionMethod, conv.Confidence)
	}

	// Re-running is safe: duplicate writes are swallowed by key.
	if _, err := f.svc.Reconcile(context.Background(), res.ConversionID); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	rows, _ = f.attributions.ListByConversion(context.Background(), res.ConversionID)
	if len(rows) != 3 {
		t.Fatalf("rows after rerun = %d, want 3", len(rows))
	}
}

func TestReconcileRepairsEmailAttributedConversion(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	// Journey known only through the email signal; the conversion carries no
	// identity.
	for i, age := range []time.Duration{72 * time.Hour, 24 * time.Hour, time.Hour} {
		f.seedTouchpoint(t, domain.Touchpoint{
			TouchpointID: []string{"tp_a", "tp_b", "tp_c"}[i],
			AccountID:    "acct_1",
			Email:        "buyer@example.com",
			UTM:          domain.UTMParams{Source: "youtube"},
			OccurredAt:   at.Add(-age),
		})
	}

	f.attributions.failModels[domain.ModelLinear] = true
	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		Kind:        "purchase",
		AmountCents: 9000,
		Signals:     ConversionSignals{Email: "buyer@example.com"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	if res.AttributionState != domain.AttributionStateIncomplete {
		t.Fatalf("state = %s, want incomplete after partial write", res.AttributionState)
	}

	f.attributions.failModels = map[string]bool{}
	rec, err := f.svc.Reconcile(context.Background(), res.ConversionID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.State != domain.AttributionStateAttributed {
		t.Fatalf("reconciled state = %s", rec.State)
	}

	// Repair must see the same three-touchpoint journey the resolver saw, not
	// collapse to the attributed touchpoint: per model, credited cents sum to
	// the conversion amount with no extra rows.
	rows, _ := f.attributions.ListByConversion(context.Background(), res.ConversionID)
	sums := map[string]int64{}
	counts := map[string]int{}
	for _, row := range rows {
		sums[row.Model] += row.AmountCents
		counts[row.Model]++
	}
	for _, model := range []string{domain.ModelFirstTouch, domain.ModelLastTouch, domain.ModelLinear} {
		if sums[model] != 9000 {
			t.Fatalf("%s sum = %d, want 9000 (rows %v)", model, sums[model], counts)
		}
	}
	if counts[domain.ModelFirstTouch] != 1 || counts[domain.ModelLastTouch] != 1 || counts[domain.ModelLinear] != 3 {
		t.Fatalf("row counts = %v, want 1/1/3", counts)
	}
}

func TestReconcileIncompleteBatch(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		SessionID:  "sess-1",
		OccurredAt: at.Add(-time.Hour),
	})

	f.attributions.failModels[domain.ModelFirstTouch] = true
	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		IdentityID:  "id_1",
		Kind:        "purchase",
		AmountCents: 100,
		Signals:     ConversionSignals{SessionID: "sess-1"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	f.attributions.failModels = map[string]bool{}

	repaired, err := f.svc.ReconcileIncomplete(context.Background(), 10)
	if err != nil {
		t.Fatalf("reconcile incomplete: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}
	conv, _ := f.conversions.GetByID(context.Background(), res.ConversionID)
	if conv.AttributionState != domain.AttributionStateAttributed {
		t.Fatalf("state = %s", conv.AttributionState)
	}
}

func TestReconcileIncompleteContinuesPastFailures(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()

	// A conversion whose decided touchpoint no longer exists cannot be
	// repaired; it must not block the rest of the batch.
	broken := domain.Conversion{
		ConversionID:           "conv_broken",
		AccountID:              "acct_1",
		Kind:                   "purchase",
		AmountCents:            1000,
		OccurredAt:             at,
		AttributionState:       domain.AttributionStateIncomplete,
		AttributedTouchpointID: "tp_gone",
		AttributionMethod:      domain.MethodSession,
	}
	if err := f.conversions.Create(context.Background(), broken); err != nil {
		t.Fatalf("seed broken conversion: %v", err)
	}

	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		SessionID:  "sess-1",
		OccurredAt: at.Add(-time.Hour),
	})
	f.attributions.failModels[domain.ModelLinear] = true
	res, err := f.svc.RecordConversion(context.Background(), RecordConversionRequest{
		AccountID:   "acct_1",
		IdentityID:  "id_1",
		Kind:        "purchase",
		AmountCents: 100,
		Signals:     ConversionSignals{SessionID: "sess-1"},
	}, "")
	if err != nil {
		t.Fatalf("record conversion: %v", err)
	}
	f.attributions.failModels = map[string]bool{}

	repaired, err := f.svc.ReconcileIncomplete(context.Background(), 10)
	if err != nil {
		t.Fatalf("reconcile incomplete: %v", err)
	}
	if repaired != 1 {
		t.Fatalf("repaired = %d, want 1", repaired)
	}

	goodConv, _ := f.conversions.GetByID(context.Background(), res.ConversionID)
	if goodConv.AttributionState != domain.AttributionStateAttributed {
		t.Fatalf("repairable conversion state = %s", goodConv.AttributionState)
	}
	brokenConv, _ := f.conversions.GetByID(context.Background(), "conv_broken")
	if brokenConv.AttributionState != domain.AttributionStateIncomplete {
		t.Fatalf("unrepairable conversion state = %s, want incomplete for the next sweep", brokenConv.AttributionState)
	}
}

func TestReconcilePendingIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture()
	conv := domain.Conversion{
		ConversionID:     "conv_pending",
		AccountID:        "acct_1",
		Kind:             "purchase",
		AttributionState: domain.AttributionStatePending,
	}
	if err := f.conversions.Create(context.Background(), conv); err != nil {
		t.Fatalf("seed conversion: %v", err)
	}

	rec, err := f.svc.Reconcile(context.Background(), "conv_pending")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if rec.State != domain.AttributionStatePending || rec.RowsWritten != 0 {
		t.Fatalf("pending reconcile should be a no-op: %+v", rec)
	}
}

func TestImportIdentitiesMatchesAndCreates(t *testing.T) {
	t.Parallel()

	f := newFixture()
	existing := domain.Identity{
		IdentityID: "id_existing",
		AccountID:  "acct_1",
		Emails:     []string{"buyer@example.com"},
	}
	if err := f.identities.Create(context.Background(), existing); err != nil {
		t.Fatalf("seed identity: %v", err)
	}

	res, err := f.svc.ImportIdentities(context.Background(), ImportIdentitiesRequest{
		AccountID: "acct_1",
		Rows: []ImportIdentityRow{
			{Email: "Buyer@Example.com", UserID: "user-1"},
			{Email: "fresh@example.com"},
		},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if res.Matched != 1 || res.Created != 1 {
		t.Fatalf("matched/created = %d/%d, want 1/1", res.Matched, res.Created)
	}
	if res.Results[0].IdentityID != "id_existing" {
		t.Fatalf("first row should match existing identity: %+v", res.Results[0])
	}
	if !res.Results[1].Created {
		t.Fatalf("second row should create: %+v", res.Results[1])
	}
}

func TestChannelReportValidatesModel(t *testing.T) {
	t.Parallel()

	f := newFixture()
	if _, err := f.svc.ChannelReport(context.Background(), ChannelReportQuery{
		AccountID: "acct_1",
		Model:     "time_decay",
	}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid model error, got %v", err)
	}
}

func TestResolvePreviewWritesNothing(t *testing.T) {
	t.Parallel()

	f := newFixture()
	at := time.Now().UTC()
	f.seedTouchpoint(t, domain.Touchpoint{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		SessionID:  "sess-1",
		OccurredAt: at.Add(-time.Hour),
	})

	res, err := f.svc.ResolvePreview(context.Background(), ResolvePreviewRequest{
		AccountID:  "acct_1",
		IdentityID: "id_1",
		Signals:    ConversionSignals{SessionID: "sess-1"},
	})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if res.Method != domain.MethodSession || res.Confidence != 85 || res.Candidates != 1 {
		t.Fatalf("preview = %+v", res)
	}
	if len(f.conversions.items) != 0 || len(f.attributions.rows) != 0 {
		t.Fatalf("preview must not write")
	}
}
