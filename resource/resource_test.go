package resource

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func TestNewRejectsBadDescriptors(t *testing.T) {
	cases := map[string]struct{ name, root string }{
		"empty name":  {"", "/products"},
		"blank name":  {"  ", "/products"},
		"colon name":  {"a:b", "/products"},
		"empty root":  {"product", ""},
		"slash root":  {"product", "/"},
		"only spaces": {" ", " "},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(tc.name, tc.root)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, KindInvalidDescriptor, verr.Kind)
		})
	}
}

func TestProductScenarioKeysAndURLs(t *testing.T) {
	products := MustNew("product", "/products")

	detail := Detail[product](products)
	u, err := detail.URL(Params{"id": "e671"})
	require.NoError(t, err)
	assert.Equal(t, "/products/e671", u)

	k, err := detail.Key(Params{"id": "e671"})
	require.NoError(t, err)
	assert.Equal(t, "product:/products/e671", k)

	// every operation on the same instance collapses to the same key
	for _, key := range []func(Params) (string, error){
		Update[product](products).Key,
		PartialUpdate[product](products).Key,
		Delete[product](products).Key,
	} {
		got, err := key(Params{"id": "e671"})
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
}

func TestURLQueryIsSortedAndSkipsAbsent(t *testing.T) {
	d := MustNew("product", "http://localhost:8000/products/")

	u, err := d.URL(Params{"page": 2, "category": "shoes", "archived": false, "gone": nil})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/products?archived=false&category=shoes&page=2", u)

	u, err = d.URL(Params{"id": 42, "expand": "rating"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/products/42?expand=rating", u)

	u, err = d.URL(Params{"id": "a b/c"})
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/products/a%20b%2Fc", u)
}

func TestKeyEqualityFollowsURLEquality(t *testing.T) {
	d := MustNew("product", "/products")
	pairs := []struct {
		a, b Params
		same bool
	}{
		{Params{"id": "1"}, Params{"id": "1"}, true},
		{Params{"id": "1"}, Params{"id": 1}, true},
		{Params{"a": 1, "b": 2}, Params{"b": 2, "a": 1}, true},
		{Params{}, Params{"x": nil}, true},
		{Params{"id": "1"}, Params{"id": "2"}, false},
		{Params{"id": "1"}, Params{"id": "1", "v": true}, false},
		{Params{"page": 1}, Params{"page": 2}, false},
	}
	for _, p := range pairs {
		ua, err := d.URL(p.a)
		require.NoError(t, err)
		ub, err := d.URL(p.b)
		require.NoError(t, err)
		ka, err := d.Key(p.a)
		require.NoError(t, err)
		kb, err := d.Key(p.b)
		require.NoError(t, err)

		assert.Equal(t, ua == ub, ka == kb, "%v vs %v", p.a, p.b)
		assert.Equal(t, p.same, ka == kb, "%v vs %v", p.a, p.b)
	}
}

func TestNonScalarParamsAreRejected(t *testing.T) {
	d := MustNew("product", "/products")
	for _, v := range []any{[]string{"a"}, map[string]any{"x": 1}, struct{}{}, &product{}} {
		_, err := d.URL(Params{"filter": v})
		require.Error(t, err)
		assert.True(t, errors.Is(err, &ValidationError{Kind: KindInvalidParam}), "%T: %v", v, err)
	}

	_, err := Detail[product](d).Key(Params{"id": []int{1}})
	assert.True(t, errors.Is(err, &ValidationError{Kind: KindInvalidParam}))
}

func TestInstanceOperationsRequireID(t *testing.T) {
	d := MustNew("product", "/products")
	for name, url := range map[string]URLFunc{
		"detail":        Detail[product](d).URL,
		"update":        Update[product](d).URL,
		"partialUpdate": PartialUpdate[product](d).URL,
		"delete":        Delete[product](d).URL,
	} {
		_, err := url(Params{"title": "x"})
		assert.True(t, errors.Is(err, &ValidationError{Kind: KindMissingID}), name)
		_, err = url(Params{"id": ""})
		assert.True(t, errors.Is(err, &ValidationError{Kind: KindMissingID}), name)
	}
}

func TestBuilderDefaults(t *testing.T) {
	d := MustNew("product", "/products")
	methods := map[Method]Method{
		List[product](d).Method():          MethodGet,
		Create[product](d).Method():        MethodPost,
		Update[product](d).Method():        MethodPut,
		PartialUpdate[product](d).Method(): MethodPatch,
		Delete[product](d).Method():        MethodDelete,
	}
	for got, want := range methods {
		assert.Equal(t, want, got)
	}

	req := Detail[product](d)
	assert.Equal(t, MethodGet, req.Method())
	assert.Equal(t, JSON, req.ResponseType())
	assert.Equal(t, map[string]string{"Content-Type": "application/json"}, req.Headers())
	assert.Equal(t, DefaultCacheExpiry, req.CacheExpiry())
	assert.Zero(t, req.PollInterval())
	assert.Nil(t, req.Optimistic())
}

func TestListAndCreateShareCollectionURL(t *testing.T) {
	d := MustNew("product", "/products")
	lu, err := List[product](d).URL(Params{})
	require.NoError(t, err)
	cu, err := Create[product](d).URL(Params{})
	require.NoError(t, err)
	assert.Equal(t, "/products", lu)
	assert.Equal(t, lu, cu)
}

func TestCreateThenDetailRoundTrip(t *testing.T) {
	d := MustNew("product", "/products")
	created := product{ID: "p-17", Title: "Lamp"} // as returned by a create

	u, err := Detail[product](d).URL(Params{"id": created.ID})
	require.NoError(t, err)
	assert.Equal(t, "/products/p-17", u)
}

func TestExtendNeverMutatesBase(t *testing.T) {
	base := Detail[product](MustNew("product", "/products"))

	post := base.Extend(WithMethod(MethodPost), WithHeader("x-trace", "1"), WithCacheExpiry(time.Second))
	assert.Equal(t, MethodPost, post.Method())
	assert.Equal(t, "1", post.Headers()["X-Trace"])
	assert.Equal(t, time.Second, post.CacheExpiry())

	assert.Equal(t, MethodGet, base.Method())
	assert.NotContains(t, base.Headers(), "X-Trace")
	assert.Equal(t, DefaultCacheExpiry, base.CacheExpiry())

	// a second variant built from the same base is independent of the first
	text := base.Extend(WithResponseType(Text), WithoutHeader("content-type"))
	assert.Equal(t, Text, text.ResponseType())
	assert.Empty(t, text.Headers())
	assert.Equal(t, "1", post.Headers()["X-Trace"])
	assert.Equal(t, JSON, base.ResponseType())
	assert.Contains(t, base.Headers(), "Content-Type")

	// returned header maps are copies
	h := base.Headers()
	h["Content-Type"] = "text/plain"
	assert.Equal(t, "application/json", base.Headers()["Content-Type"])
}

func TestWithOptimisticReturnsCopy(t *testing.T) {
	base := PartialUpdate[product](MustNew("product", "/products"))
	opt := base.WithOptimistic(func(p product, _ any) (product, error) { return p, nil })
	assert.NotNil(t, opt.Optimistic())
	assert.Nil(t, base.Optimistic())
}

func TestInvalidOptionsSurfaceAtUse(t *testing.T) {
	base := List[product](MustNew("product", "/products"))

	bad := base.Extend(WithMethod("BREW"))
	_, err := bad.URL(Params{})
	assert.True(t, errors.Is(err, &ValidationError{Kind: KindInvalidMethod}))
	_, err = bad.Key(Params{})
	assert.Error(t, err)
	assert.Equal(t, MethodGet, bad.Method())

	_, err = base.Extend(WithCacheExpiry(-time.Second)).URL(Params{})
	assert.True(t, errors.Is(err, &ValidationError{Kind: KindInvalidOption}))

	_, err = base.URL(Params{})
	assert.NoError(t, err)
}

func TestNilParamsDisableURL(t *testing.T) {
	req := Detail[product](MustNew("product", "/products"))
	u, err := req.URL(nil)
	require.NoError(t, err)
	assert.Empty(t, u)

	k, err := req.Key(nil)
	require.NoError(t, err)
	assert.Equal(t, "product:/products", k)
}

func TestCustomURLKeepsDerivedKeyInSync(t *testing.T) {
	d := MustNew("product", "/products")
	req := List[product](d).Extend(WithURL(func(p Params) (string, error) {
		u, err := d.URL(p)
		return u + "/featured", err
	}))
	k, err := req.Key(Params{})
	require.NoError(t, err)
	assert.Equal(t, "product:/products/featured", k)
}

func TestDescriptorDefaultsFlowIntoRequests(t *testing.T) {
	d := MustNew("metric", "/metrics",
		WithDefaultCacheExpiry(5*time.Second),
		WithDefaultPollInterval(time.Second),
		WithDefaultHeader("accept", "application/json"),
	)
	req := List[float64](d)
	assert.Equal(t, 5*time.Second, req.CacheExpiry())
	assert.Equal(t, time.Second, req.PollInterval())
	assert.Equal(t, time.Second, req.MaxAge())
	assert.Equal(t, "application/json", req.Headers()["Accept"])

	_, err := New("metric", "/metrics", WithDefaultPollInterval(-1))
	assert.Error(t, err)
}

func TestParseResponseType(t *testing.T) {
	for _, rt := range []ResponseType{JSON, Text, Blob, ArrayBuffer, Stream} {
		got, err := ParseResponseType(rt.String())
		require.NoError(t, err)
		assert.Equal(t, rt, got)
	}
	_, err := ParseResponseType("xml")
	assert.Error(t, err)
	assert.Equal(t, "unknown", ResponseType(99).String())
}
