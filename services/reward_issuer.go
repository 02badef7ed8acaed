// growth-engine/services/reward_issuer.go
package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"growth-engine/models"
)

// RewardIssuer is the external fulfillment collaborator. Payment and voucher
// issuance live in another service; the engine only tells it a campaign
// finished.
type RewardIssuer interface {
	IssueCampaignReward(campaign *models.Campaign) error
}

// HTTPRewardIssuer calls the reward service over HTTP
type HTTPRewardIssuer struct {
	BaseURL string
	Token   string
	Client  *http.Client
}

func NewHTTPRewardIssuer(baseURL, token string) *HTTPRewardIssuer {
	return &HTTPRewardIssuer{
		BaseURL: baseURL,
		Token:   token,
		Client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IssueCampaignReward posts the completed campaign to the reward service
func (c *HTTPRewardIssuer) IssueCampaignReward(campaign *models.Campaign) error {
	url := fmt.Sprintf("%s/rewards/campaigns", c.BaseURL)

	reqBody := map[string]interface{}{
		"campaign_id":   campaign.ID,
		"target_metric": campaign.TargetMetric,
		"final_value":   campaign.CurrentValue,
		"completed_at":  campaign.CompletedAt,
	}
	jsonData, _ := json.Marshal(reqBody)

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.Token)

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		log.Printf("RewardService returned %d: %s", resp.StatusCode, string(body))
		return fmt.Errorf("reward issuance failed: %d", resp.StatusCode)
	}

	return nil
}

// NoopRewardIssuer is used when no reward service is configured
type NoopRewardIssuer struct{}

func (NoopRewardIssuer) IssueCampaignReward(campaign *models.Campaign) error {
	log.Printf("ℹ️  Reward issuance skipped (no issuer configured) for campaign %s", campaign.ID)
	return nil
}
