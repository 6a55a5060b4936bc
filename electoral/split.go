package electoral

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/pbnvs/unitreg/statmodel"
)

// Split divides the rows of ds at random into a training and a test set,
// with a fraction testFrac of the rows in the test set.  The split only
// depends on the seed and the number of rows.  If testFrac is zero the
// test set is nil.
func Split(ds *statmodel.Dataset, testFrac float64, seed uint64) (*statmodel.Dataset, *statmodel.Dataset, error) {

	if testFrac < 0 || testFrac >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in [0, 1), got %v", testFrac)
	}
	if testFrac == 0 {
		return ds, nil, nil
	}

	n := ds.NumObs()
	ntest := int(math.Round(testFrac * float64(n)))
	if ntest == 0 || ntest == n {
		return nil, nil, fmt.Errorf("cannot split %d rows with test fraction %v", n, testFrac)
	}

	rng := rand.New(rand.NewPCG(seed, 0x9e3779b97f4a7c15))
	perm := rng.Perm(n)

	test := perm[:ntest]
	train := perm[ntest:]
	sort.Ints(test)
	sort.Ints(train)

	return ds.Rows(train), ds.Rows(test), nil
}
