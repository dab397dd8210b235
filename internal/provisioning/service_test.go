package provisioning

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenbank/onboarding/internal/customer"
	"github.com/lumenbank/onboarding/internal/documents"
	"github.com/lumenbank/onboarding/internal/ledger"
)

type flakyRepository struct {
	Repository
	insertFailures int32
	err            error
}

func (r *flakyRepository) Insert(ctx context.Context, p customer.Profile) error {
	if atomic.AddInt32(&r.insertFailures, -1) >= 0 {
		return r.err
	}
	return r.Repository.Insert(ctx, p)
}

type flakyLedger struct {
	ledger.Ledger
	failures int32
}

func (l *flakyLedger) EnsureAccount(ctx context.Context, code string) error {
	if atomic.AddInt32(&l.failures, -1) >= 0 {
		return errors.New("ledger unavailable")
	}
	return l.Ledger.EnsureAccount(ctx, code)
}

type failingDocuments struct{}

func (failingDocuments) Put(context.Context, string, string, []byte) error {
	return errors.New("bucket unavailable")
}

func sequence(numbers ...string) func() (string, error) {
	var (
		mu sync.Mutex
		i  int
	)
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[i%len(numbers)]
		i++
		return n, nil
	}
}

func testForm() customer.Form {
	return customer.Form{Email: "A@b.com", FirstName: "Jo", LastName: "Doe", AccountType: "savings"}
}

func TestProvisionIsIdempotent(t *testing.T) {
	l := ledger.NewInMemory()
	svc := NewService(NewMemoryRepository(), l, nil, Options{}, nil)
	ctx := context.Background()

	first, err := svc.Provision(ctx, "id-1", testForm())
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.True(t, first.Completed)
	assert.Regexp(t, `^\d{12}$`, first.AccountNumber)
	assert.Equal(t, customer.RoleCustomer, first.Role)
	assert.Equal(t, "Jo Doe", first.Profile.DisplayName)
	assert.Equal(t, "a@b.com", first.Profile.Email)
	assert.Equal(t, customer.AccountTypeSavings, first.Profile.AccountType)

	second, err := svc.Provision(ctx, "id-1", customer.Form{Email: "other@b.com", FirstName: "Changed"})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.False(t, second.Completed)
	assert.Equal(t, first.AccountNumber, second.AccountNumber)
	assert.Equal(t, "Jo Doe", second.Profile.DisplayName)

	balance, err := l.Balance(ctx, ledger.AccountCode(first.AccountNumber))
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestProvisionRetriesAccountNumberCollisions(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, ledger.NewInMemory(), nil, Options{
		GenerateAccountNumber: sequence("111111111111", "111111111111", "222222222222"),
	}, nil)
	ctx := context.Background()

	a, err := svc.Provision(ctx, "id-a", testForm())
	require.NoError(t, err)
	b, err := svc.Provision(ctx, "id-b", testForm())
	require.NoError(t, err)

	assert.Equal(t, "111111111111", a.AccountNumber)
	assert.Equal(t, "222222222222", b.AccountNumber)
}

func TestProvisionGivesUpAfterMaxAttempts(t *testing.T) {
	repo := &flakyRepository{Repository: NewMemoryRepository(), insertFailures: 10, err: errors.New("connection reset")}
	svc := NewService(repo, ledger.NewInMemory(), nil, Options{MaxAttempts: 3}, nil)

	_, err := svc.Provision(context.Background(), "id-1", testForm())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "connection reset")

	_, err = repo.FindByIdentity(context.Background(), "id-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestProvisionRecoversFromTransientFailure(t *testing.T) {
	repo := &flakyRepository{Repository: NewMemoryRepository(), insertFailures: 2, err: errors.New("timeout")}
	svc := NewService(repo, ledger.NewInMemory(), nil, Options{MaxAttempts: 3}, nil)

	res, err := svc.Provision(context.Background(), "id-1", testForm())
	require.NoError(t, err)
	assert.True(t, res.Created)
}

func TestProvisionFinishesInterruptedProfile(t *testing.T) {
	repo := NewMemoryRepository()
	l := &flakyLedger{Ledger: ledger.NewInMemory(), failures: 2}
	svc := NewService(repo, l, nil, Options{MaxAttempts: 2}, nil)
	ctx := context.Background()

	_, err := svc.Provision(ctx, "id-1", testForm())
	require.ErrorIs(t, err, ErrProvisioningFailed)
	assert.Contains(t, err.Error(), "ledger unavailable")

	stored, err := repo.FindByIdentity(ctx, "id-1")
	require.NoError(t, err)
	assert.Nil(t, stored.CompletedAt)

	res, err := svc.Provision(ctx, "id-1", testForm())
	require.NoError(t, err)
	assert.False(t, res.Created)
	assert.True(t, res.Completed)
	assert.Equal(t, stored.AccountNumber, res.AccountNumber)
	require.NotNil(t, res.Profile.CompletedAt)

	_, err = l.Balance(ctx, ledger.AccountCode(res.AccountNumber))
	require.NoError(t, err)

	again, err := svc.Provision(ctx, "id-1", testForm())
	require.NoError(t, err)
	assert.False(t, again.Completed)
}

func TestProvisionRejectsMalformedAccountNumbers(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), nil, Options{
		MaxAttempts:           2,
		GenerateAccountNumber: sequence("12345"),
	}, nil)

	_, err := svc.Provision(context.Background(), "id-1", testForm())
	assert.ErrorIs(t, err, ErrProvisioningFailed)
}

func TestConcurrentProvisionConverges(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), nil, Options{}, nil)
	ctx := context.Background()

	const workers = 10
	numbers := make(chan string, workers)
	var createdCount int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Provision(ctx, "id-1", testForm())
			if err != nil {
				t.Errorf("provision: %v", err)
				return
			}
			if res.Created {
				atomic.AddInt32(&createdCount, 1)
			}
			numbers <- res.AccountNumber
		}()
	}
	wg.Wait()
	close(numbers)

	seen := map[string]struct{}{}
	for n := range numbers {
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, 1)
	assert.Equal(t, int32(1), createdCount)
}

func TestConcurrentProvisionCompletesOnce(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), nil, Options{}, nil)
	ctx := context.Background()

	var completed int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := svc.Provision(ctx, "id-1", testForm())
			if err != nil {
				t.Errorf("provision: %v", err)
				return
			}
			if res.Completed {
				atomic.AddInt32(&completed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), completed)
}

func TestProvisionUploadsDocumentOnCreate(t *testing.T) {
	docs := documents.NewMemoryStore()
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), docs, Options{}, nil)
	form := testForm()
	form.Document = customer.EncodeDocument("passport.png", "image/png", []byte{9, 9})

	res, err := svc.Provision(context.Background(), "id-1", form)
	require.NoError(t, err)
	require.NotEmpty(t, res.Profile.DocumentKey)

	obj, ok := docs.Get(res.Profile.DocumentKey)
	require.True(t, ok)
	assert.Equal(t, "image/png", obj.ContentType)

	stored, err := svc.Get(context.Background(), "id-1")
	require.NoError(t, err)
	assert.Equal(t, res.Profile.DocumentKey, stored.DocumentKey)

	_, err = svc.Provision(context.Background(), "id-1", form)
	require.NoError(t, err)
	assert.Equal(t, 1, docs.Len(), "repeat calls do not upload again")
}

func TestProvisionAttachesDocumentToExistingProfile(t *testing.T) {
	docs := documents.NewMemoryStore()
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), docs, Options{}, nil)
	ctx := context.Background()

	first, err := svc.Provision(ctx, "id-1", testForm())
	require.NoError(t, err)
	require.Empty(t, first.Profile.DocumentKey)

	form := customer.Form{Document: customer.EncodeDocument("id.pdf", "application/pdf", []byte{7})}
	res, err := svc.Provision(ctx, "id-1", form)
	require.NoError(t, err)
	require.NotEmpty(t, res.Profile.DocumentKey)
	assert.Equal(t, 1, docs.Len())
	assert.Equal(t, "Jo Doe", res.Profile.DisplayName)

	stored, err := svc.Get(ctx, "id-1")
	require.NoError(t, err)
	assert.Equal(t, res.Profile.DocumentKey, stored.DocumentKey)
}

func TestProvisionSurvivesDocumentUploadFailure(t *testing.T) {
	svc := NewService(NewMemoryRepository(), ledger.NewInMemory(), failingDocuments{}, Options{}, nil)
	form := testForm()
	form.Document = customer.EncodeDocument("passport.png", "image/png", []byte{1})

	res, err := svc.Provision(context.Background(), "id-1", form)
	require.NoError(t, err)
	assert.Empty(t, res.Profile.DocumentKey)
	assert.True(t, customer.ValidAccountNumber(res.AccountNumber))
}

func TestGenerateAccountNumberFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		n, err := GenerateAccountNumber()
		require.NoError(t, err)
		require.True(t, customer.ValidAccountNumber(n), n)
		require.NotEqual(t, byte('0'), n[0])
	}
}
