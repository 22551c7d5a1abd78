package client

import (
	"fmt"
	"os"

	"github.com/go-resty/resty/v2"

	"github.com/cradleeye/internal/alert"
	"github.com/cradleeye/internal/history"
	"github.com/cradleeye/internal/models"
	"github.com/cradleeye/internal/notify"
)

// Client talks to a running appliance over its REST API. Server address and
// credentials come from CRADLEEYE_ADDR / CRADLEEYE_USER / CRADLEEYE_PASSWORD.
type Client struct {
	http *resty.Client
}

func NewClient() (*Client, error) {
	addr := os.Getenv("CRADLEEYE_ADDR")
	if addr == "" {
		addr = "http://localhost:8080"
	}

	c := &Client{http: resty.New().SetBaseURL(addr)}
	if err := c.login(os.Getenv("CRADLEEYE_USER"), os.Getenv("CRADLEEYE_PASSWORD")); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) login(username, password string) error {
	if username == "" {
		username = "admin"
	}
	var out struct {
		Token string `json:"token"`
	}
	resp, err := c.http.R().
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&out).
		Post("/api/v1/auth/login")
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("login failed: %s", resp.Status())
	}
	c.http.SetAuthToken(out.Token)
	return nil
}

func (c *Client) get(path string, out any) error {
	resp, err := c.http.R().SetResult(out).Get(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", path, resp.Status())
	}
	return nil
}

func (c *Client) ActiveAlerts() ([]models.Alert, error) {
	var alerts []models.Alert
	err := c.get("/api/v1/alerts/active", &alerts)
	return alerts, err
}

func (c *Client) AlertHistory(limit int) ([]models.Alert, error) {
	var alerts []models.Alert
	err := c.get(fmt.Sprintf("/api/v1/alerts/history?limit=%d", limit), &alerts)
	return alerts, err
}

func (c *Client) AcknowledgeAlert(id string) error {
	resp, err := c.http.R().Put(fmt.Sprintf("/api/v1/alerts/%s/acknowledge", id))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("acknowledge: %s", resp.Status())
	}
	return nil
}

func (c *Client) ResolveAlert(id string) error {
	resp, err := c.http.R().Put(fmt.Sprintf("/api/v1/alerts/%s/resolve", id))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("resolve: %s", resp.Status())
	}
	return nil
}

func (c *Client) DispatcherStats() (*notify.Stats, error) {
	var stats notify.Stats
	err := c.get("/api/v1/stats", &stats)
	return &stats, err
}

func (c *Client) ManagerStats() (*alert.ManagerStats, error) {
	var stats alert.ManagerStats
	err := c.get("/api/v1/manager/stats", &stats)
	return &stats, err
}

func (c *Client) Summary(hours int) (*history.Summary, error) {
	var summary history.Summary
	err := c.get(fmt.Sprintf("/api/v1/alerts/summary?hours=%d", hours), &summary)
	return &summary, err
}

func (c *Client) TestChannel(channel string) error {
	resp, err := c.http.R().Post(fmt.Sprintf("/api/v1/channels/%s/test", channel))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("test %s: %s: %s", channel, resp.Status(), resp.String())
	}
	return nil
}

func (c *Client) ClientStats(id string) (map[string]any, error) {
	var stats map[string]any
	err := c.get(fmt.Sprintf("/api/v1/clients/%s/stats", id), &stats)
	return stats, err
}

func (c *Client) SetQuality(id string, level models.QualityLevel) error {
	resp, err := c.http.R().
		SetBody(map[string]models.QualityLevel{"quality": level}).
		Put(fmt.Sprintf("/api/v1/clients/%s/quality", id))
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("set quality: %s: %s", resp.Status(), resp.String())
	}
	return nil
}

func (c *Client) QualityStats() (map[string]any, error) {
	var stats map[string]any
	err := c.get("/api/v1/quality/stats", &stats)
	return stats, err
}
