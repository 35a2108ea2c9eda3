package label

import "testing"

func TestDerive(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		env     string
		cat     Category
		node    string
		counter string
		want    string
	}{
		{
			name:    "urn node shortened",
			env:     "production",
			cat:     Synchronization,
			node:    "urn:node:ABC",
			counter: "RETRIEVED",
			want:    "production.synchron.abc.retrieved",
		},
		{
			name:    "replication category",
			env:     "Stage",
			cat:     Replication,
			node:    "urn:node:mnORC1",
			counter: "FAILED",
			want:    "stage.replicat.mnorc1.failed",
		},
		{
			name:    "total passes through",
			env:     "production",
			cat:     Synchronization,
			node:    "TOTAL",
			counter: "QUEUED",
			want:    "production.synchron.total.queued",
		},
		{
			name:    "plain node id kept whole",
			env:     "production",
			cat:     Replication,
			node:    "mn-ucsb",
			counter: "COMPLETED",
			want:    "production.replicat.mn-ucsb.completed",
		},
		{
			name:    "dots and spaces sanitized",
			env:     "test env",
			cat:     Replication,
			node:    "cn.example.org",
			counter: "QUEUED",
			want:    "test_env.replicat.cn_example_org.queued",
		},
		{
			name:    "more than three segments uses the third",
			env:     "production",
			cat:     Synchronization,
			node:    "urn:node:XYZ:extra",
			counter: "SUBMITTED",
			want:    "production.synchron.xyz.submitted",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := Derive(tt.env, tt.cat, tt.node, tt.counter)
			if got != tt.want {
				t.Fatalf("Derive = %q, want %q", got, tt.want)
			}
			if again := Derive(tt.env, tt.cat, tt.node, tt.counter); again != got {
				t.Fatalf("Derive not deterministic: %q then %q", got, again)
			}
		})
	}
}

func TestCategory_Strings(t *testing.T) {
	t.Parallel()

	if Synchronization.Short() != "synchron" || Replication.Short() != "replicat" {
		t.Fatalf("Short() = %q/%q", Synchronization.Short(), Replication.Short())
	}
	if Synchronization.String() != "synchronization" || Replication.String() != "replication" {
		t.Fatalf("String() = %q/%q", Synchronization.String(), Replication.String())
	}
}
