package dictionary

import (
	"reflect"
	"testing"

	"patchsage/pkg/patch"
)

func TestParseFeedPayload(t *testing.T) {
	const body = `{
		"data": [
			{
				"uuid": "agent-reyna",
				"displayName": "Reyna",
				"isPlayableCharacter": true,
				"role": {"displayName": "Duelist"},
				"displayIcon": "https://example.com/reyna.png",
				"abilities": [
					{"displayName": "Leer"},
					{"displayName": "Dismiss"},
					{"displayName": "Empress"}
				]
			},
			{
				"uuid": "npc-tutorial",
				"displayName": "Training Bot",
				"isPlayableCharacter": false
			},
			{
				"uuid": "",
				"displayName": "Ghost Entry",
				"isPlayableCharacter": true
			}
		]
	}`

	agents, err := ParseFeedPayload([]byte(body))
	if err != nil {
		t.Fatalf("unexpected parse error: %v", err)
	}
	if len(agents) != 1 {
		t.Fatalf("expected 1 playable agent, got %d", len(agents))
	}

	agent := agents[0]
	if agent.Name != "Reyna" || agent.Role != "Duelist" {
		t.Fatalf("unexpected agent: %+v", agent)
	}
	if agent.IconURL != "https://example.com/reyna.png" {
		t.Fatalf("unexpected icon url: %q", agent.IconURL)
	}
	wantAliases := []string{"Dismiss", "Empress", "Leer", "Reyna"}
	if !reflect.DeepEqual(agent.Aliases, wantAliases) {
		t.Fatalf("unexpected aliases: got %v, want %v", agent.Aliases, wantAliases)
	}
}

func TestParseFeedPayloadMalformed(t *testing.T) {
	if _, err := ParseFeedPayload([]byte("{not json")); err == nil {
		t.Fatal("expected decode error for malformed payload")
	}
}

func TestBuildSkipsUnusableEntries(t *testing.T) {
	d := Build([]patch.Agent{
		{ID: "a1", Name: "Reyna", Aliases: []string{"Reyna", "Empress", "empress"}},
		{ID: "", Name: "Nameless"},
		{ID: "a2", Name: ""},
	})

	if d.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", d.Len())
	}
	entry := d.Entries()[0]
	wantForms := []string{"Empress", "Reyna"}
	if !reflect.DeepEqual(entry.Forms, wantForms) {
		t.Fatalf("unexpected surface forms: got %v, want %v", entry.Forms, wantForms)
	}
}

func TestBuildFallsBackToNameAndAbilities(t *testing.T) {
	d := Build([]patch.Agent{
		{ID: "a1", Name: "Harbor", Abilities: []string{"High Tide", "Cascade"}},
	})

	entry := d.Entries()[0]
	wantForms := []string{"Cascade", "Harbor", "High Tide"}
	if !reflect.DeepEqual(entry.Forms, wantForms) {
		t.Fatalf("unexpected surface forms: got %v, want %v", entry.Forms, wantForms)
	}
}

func TestDegradedDictionaryIsObservable(t *testing.T) {
	d := Degraded()
	if !d.IsDegraded() {
		t.Fatal("degraded dictionary must report itself as degraded")
	}
	if d.Len() != 0 {
		t.Fatalf("degraded dictionary must be empty, got %d entries", d.Len())
	}

	empty := Build(nil)
	if empty.IsDegraded() {
		t.Fatal("an empty but healthy dictionary must not report degraded")
	}
}
