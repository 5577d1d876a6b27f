package fee

import (
	"math"
	"math/big"
	"math/rand"
	"testing"

	"github.com/smallbiznis/payflow/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFivePercent(t *testing.T) {
	policy := Policy{RateBps: 500}

	got, err := policy.Compute(20000, PayerRoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{Gross: 20000, Fee: 1000, Net: 19000}, got)

	got, err = policy.Compute(19, PayerRoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Fee)
	assert.Equal(t, int64(19), got.Net)

	got, err = policy.Compute(0, PayerRoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, Breakdown{}, got)
}

func TestComputeIsDeterministicAndConserving(t *testing.T) {
	policy := Policy{RateBps: 733}
	rng := rand.New(rand.NewSource(42))
	amounts := []int64{0, 1, 9999, 10000, 10001, math.MaxInt64}
	for i := 0; i < 500; i++ {
		amounts = append(amounts, rng.Int63())
	}

	for _, amount := range amounts {
		first, err := policy.Compute(amount, PayerRoleBusiness)
		require.NoError(t, err)
		second, err := policy.Compute(amount, PayerRoleBusiness)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, amount, first.Fee+first.Net)

		want := new(big.Int).Mul(big.NewInt(amount), big.NewInt(733))
		want.Quo(want, big.NewInt(BasisPointsScale))
		assert.Equal(t, want.Int64(), first.Fee, "amount %d", amount)
	}
}

func TestComputeRejectsInvalidInput(t *testing.T) {
	_, err := Policy{RateBps: 500}.Compute(-1, PayerRoleBusiness)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = Policy{RateBps: 10001}.Compute(100, PayerRoleBusiness)
	assert.ErrorIs(t, err, ErrInvalidRate)
}

func TestComputeUsesRoleOverride(t *testing.T) {
	policy := Policy{RateBps: 500, RoleRateBps: map[PayerRole]int64{PayerRoleWorker: 0}}

	business, err := policy.Compute(1000, PayerRoleBusiness)
	require.NoError(t, err)
	assert.Equal(t, int64(50), business.Fee)

	worker, err := policy.Compute(1000, PayerRoleWorker)
	require.NoError(t, err)
	assert.Equal(t, int64(0), worker.Fee)

	assert.Equal(t, int64(500), policy.RateFor(PayerRoleBusiness))
	assert.Equal(t, int64(0), policy.RateFor(PayerRoleWorker))
}

func TestConfigSourceFollowsHolder(t *testing.T) {
	holder := config.NewStaticPolicyHolder(config.PolicyConfig{
		FeeRateBps:     250,
		RoleFeeRateBps: map[string]int64{"worker": 100},
		WeeklyWindow:   1,
	})
	policy := NewConfigSource(holder).Current()
	assert.Equal(t, int64(250), policy.RateBps)
	assert.Equal(t, int64(100), policy.RoleRateBps[PayerRoleWorker])
}

func TestProrate(t *testing.T) {
	share, err := Prorate(1000, 5000, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(250), share)

	share, err = Prorate(1000, 20000, 20000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), share)

	share, err = Prorate(333, 1, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(111), share)

	_, err = Prorate(10, 5, 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}
