package malamute

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func Test_dns_sd_alternative_service_name(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Foo #2", dns_sd_alternative_service_name("Foo"))
	assert.Equal(t, "Foo #3", dns_sd_alternative_service_name("Foo #2"))
	assert.Equal(t, "Foo #10", dns_sd_alternative_service_name("Foo #9"))
	assert.Equal(t, "Foo #100", dns_sd_alternative_service_name("Foo #99"))

	// " #1" and " #0" are not names we would have produced, so they are
	// treated as part of the base.
	assert.Equal(t, "Foo #1 #2", dns_sd_alternative_service_name("Foo #1"))
	assert.Equal(t, "Foo #bar #2", dns_sd_alternative_service_name("Foo #bar"))
	assert.Equal(t, " #2", dns_sd_alternative_service_name(""))
}

func Test_dns_sd_alternative_service_name_properties(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		var name = rapid.StringN(-1, DNS_SD_NAME_MAX, -1).Draw(t, "name")

		var alt = dns_sd_alternative_service_name(name)

		assert.NotEqual(t, name, alt)
		assert.LessOrEqual(t, len(alt), DNS_SD_NAME_MAX)
	})
}

// Repeated application must keep producing fresh candidates, even when the
// starting name is already at the length limit and the base has to shrink
// to make room for a growing counter.
func Test_dns_sd_alternative_service_name_never_repeats(t *testing.T) {
	t.Parallel()

	var name = dns_sd_truncate_name("An uncomfortably long service name that fills the entire label limit", DNS_SD_NAME_MAX)
	require.Len(t, name, DNS_SD_NAME_MAX)

	var seen = make(map[string]bool)
	seen[name] = true

	for i := 0; i < 1000; i++ {
		name = dns_sd_alternative_service_name(name)

		require.LessOrEqual(t, len(name), DNS_SD_NAME_MAX)
		require.False(t, seen[name], "name %q produced twice", name)
		seen[name] = true
	}
}

func Test_rename_all_services(t *testing.T) {
	t.Parallel()

	var ctx = []dns_sd_service_t{
		{port: 8000, channel: -1, name: "Malamute"},
		{port: 8001, channel: 0, name: "Malamute channel 0"},
		{port: 0, channel: 0, name: ""},
	}

	rename_all_services(ctx)

	assert.Equal(t, "Malamute #2", ctx[0].name)
	assert.Equal(t, "Malamute channel 0 #2", ctx[1].name)
	assert.Empty(t, ctx[2].name, "inert slots are left alone")

	rename_all_services(ctx)

	assert.Equal(t, "Malamute #3", ctx[0].name)
	assert.Equal(t, "Malamute channel 0 #3", ctx[1].name)
}
