package dictionary

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"patchsage/internal/util"
	"patchsage/pkg/patch"
)

// DefaultFeedURL is the public agent metadata endpoint.
const DefaultFeedURL = "https://valorant-api.com/v1/agents?isPlayableCharacter=true"

// Feed is the on-disk artifact shape for the agent vocabulary.
type Feed struct {
	Agents []patch.Agent `json:"agents"`
}

// Client fetches the agent vocabulary from the external dictionary feed.
type Client struct {
	feedURL    string
	httpClient *http.Client
}

// NewClient creates a feed client. An empty feedURL selects the default
// public endpoint.
func NewClient(feedURL string) *Client {
	if feedURL == "" {
		feedURL = DefaultFeedURL
	}
	return &Client{
		feedURL:    feedURL,
		httpClient: &http.Client{Timeout: 20 * time.Second},
	}
}

// ListAgents fetches and parses the feed, retrying transient HTTP
// failures. Failures are wrapped in ErrUnavailable so callers can
// degrade linking instead of aborting.
func (c *Client) ListAgents(ctx context.Context) ([]patch.Agent, error) {
	body, err := util.RetryWithContext(ctx, 3, c.fetchOnce)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	agents, err := ParseFeedPayload(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return agents, nil
}

func (c *Client) fetchOnce(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.feedURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

type feedPayload struct {
	Data []struct {
		UUID                string `json:"uuid"`
		DisplayName         string `json:"displayName"`
		IsPlayableCharacter bool   `json:"isPlayableCharacter"`
		Role                struct {
			DisplayName string `json:"displayName"`
		} `json:"role"`
		DisplayIcon  string `json:"displayIcon"`
		FullPortrait string `json:"fullPortrait"`
		BustPortrait string `json:"bustPortrait"`
		Abilities    []struct {
			DisplayName string `json:"displayName"`
		} `json:"abilities"`
	} `json:"data"`
}

// ParseFeedPayload decodes the raw feed JSON into agents. Non-playable
// entries and entries without an identifier or name are dropped;
// aliases are the display name plus every ability display name.
func ParseFeedPayload(body []byte) ([]patch.Agent, error) {
	var payload feedPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode feed payload: %w", err)
	}

	agents := make([]patch.Agent, 0, len(payload.Data))
	for _, item := range payload.Data {
		if !item.IsPlayableCharacter || item.UUID == "" {
			continue
		}
		name := util.NormalizeSpace(item.DisplayName)
		if name == "" {
			continue
		}

		icon := item.DisplayIcon
		if icon == "" {
			icon = item.FullPortrait
		}
		if icon == "" {
			icon = item.BustPortrait
		}

		aliasSet := map[string]string{strings.ToLower(name): name}
		abilities := make([]string, 0, len(item.Abilities))
		for _, ability := range item.Abilities {
			abilityName := util.NormalizeSpace(ability.DisplayName)
			if abilityName == "" {
				continue
			}
			if _, ok := aliasSet[strings.ToLower(abilityName)]; !ok {
				abilities = append(abilities, abilityName)
			}
			aliasSet[strings.ToLower(abilityName)] = abilityName
		}
		sort.Slice(abilities, func(i, j int) bool {
			return strings.ToLower(abilities[i]) < strings.ToLower(abilities[j])
		})

		aliases := make([]string, 0, len(aliasSet))
		for _, alias := range aliasSet {
			aliases = append(aliases, alias)
		}
		sort.Slice(aliases, func(i, j int) bool {
			return strings.ToLower(aliases[i]) < strings.ToLower(aliases[j])
		})

		agents = append(agents, patch.Agent{
			ID:        item.UUID,
			Name:      name,
			Role:      util.NormalizeSpace(item.Role.DisplayName),
			IconURL:   icon,
			Abilities: abilities,
			Aliases:   aliases,
		})
	}

	sort.Slice(agents, func(i, j int) bool {
		return strings.ToLower(agents[i].Name) < strings.ToLower(agents[j].Name)
	})
	return agents, nil
}

// LoadFeedFile reads a previously written agents artifact.
func LoadFeedFile(path string) ([]patch.Agent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	var feed Feed
	if err := json.Unmarshal(data, &feed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return feed.Agents, nil
}
