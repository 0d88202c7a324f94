package weibo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/publicsuffix"

	"ailurus/internal/feed"
	logx "ailurus/pkg/logx"
)

const (
	loginURL  = "https://passport.sina.cn/sso/login"
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/86.0.4240.183 Safari/537.36"

	indexURLFormat = "https://m.weibo.cn/api/container/getIndex?uid=%s&luicode=10000011&lfid=231093_-_selffollowed&type=uid&value=%s&containerid=%s"
)

// ErrVerificationRequired is returned when the account demands interactive
// second verification (SMS / private message). Resolving it is outside the
// polling core; complete verification in a browser and retry.
var ErrVerificationRequired = errors.New("weibo: second verification required")

var containerIDRe = regexp.MustCompile(`fid%3D(\d+)%26`)

// Client is an authenticated weibo session. Cookies carry the session;
// the container id token is discovered once and cached for the process
// lifetime.
type Client struct {
	http       *http.Client
	log        logx.Logger
	profileURL string

	mu          sync.Mutex
	containerID string
	uid         string
}

func NewClient(profileURL string, timeout time.Duration, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(profileURL) == "" {
		return nil, errors.New("weibo: profile url is empty")
	}
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		http:       &http.Client{Jar: jar, Timeout: timeout},
		log:        log,
		profileURL: profileURL,
	}, nil
}

type loginResponse struct {
	Retcode int64  `json:"retcode"`
	Msg     string `json:"msg"`
	Data    struct {
		Username string `json:"username"`
		ErrURL   string `json:"errurl"`
	} `json:"data"`
}

// Login performs the sso form login and stores the session cookies.
// Accounts that require second verification fail with
// ErrVerificationRequired.
func (c *Client) Login(ctx context.Context, account, password string) error {
	form := url.Values{
		"username":    {account},
		"password":    {password},
		"savestate":   {"1"},
		"ec":          {"1"},
		"pagerefer":   {""},
		"entry":       {"wapsso"},
		"sinacnlogin": {"1"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Origin", "https://passport.sina.cn")
	req.Header.Set("Referer", "https://passport.sina.cn/signin/signin")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("weibo: login: http %d", resp.StatusCode)
	}

	var lr loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("weibo: login: decode: %w", err)
	}

	switch lr.Retcode {
	case 20000000:
		c.log.Info("weibo login ok", logx.String("account", account))
		return nil
	case 50011002:
		return errors.New("weibo: login failed: username or password error")
	case 50050011:
		return ErrVerificationRequired
	default:
		return fmt.Errorf("weibo: login failed: %s (retcode %d)", lr.Msg, lr.Retcode)
	}
}

type indexEnvelope struct {
	Data struct {
		Cards    []indexCard `json:"cards"`
		TabsInfo *struct {
			Tabs []struct {
				TabType     string `json:"tab_type"`
				ContainerID string `json:"containerid"`
			} `json:"tabs"`
		} `json:"tabsInfo"`
	} `json:"data"`
}

type indexCard struct {
	CardType int    `json:"card_type"`
	Mblog    *mblog `json:"mblog"`
}

type mblog struct {
	ID        json.Number `json:"id"`
	CreatedAt string      `json:"created_at"`
	Text      string      `json:"text"`
	User      *struct {
		ID         uint64 `json:"id"`
		ScreenName string `json:"screen_name"`
	} `json:"user"`
	Pics []struct {
		URL string `json:"url"`
	} `json:"pics"`
}

const mblogCardType = 9

// Feed returns the tracked profile's posts, newest first. The session
// must already be authenticated (Login or imported cookies).
func (c *Client) Feed(ctx context.Context) ([]feed.Update, error) {
	containerID, uid, err := c.containerInfo(ctx)
	if err != nil {
		return nil, err
	}

	var env indexEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf(indexURLFormat, uid, uid, containerID), &env); err != nil {
		return nil, err
	}

	numericUID, _ := strconv.ParseUint(uid, 10, 64)
	updates := make([]feed.Update, 0, len(env.Data.Cards))
	for i, card := range env.Data.Cards {
		if card.CardType != mblogCardType || card.Mblog == nil {
			continue
		}
		u, err := normalizeMblog(card.Mblog, numericUID)
		if err != nil {
			c.log.Warn("weibo card unparsable, skipping", logx.Int("index", i), logx.Err(err))
			continue
		}
		updates = append(updates, u)
	}
	return updates, nil
}

func normalizeMblog(m *mblog, fallbackUID uint64) (feed.Update, error) {
	id, err := strconv.ParseUint(m.ID.String(), 10, 64)
	if err != nil {
		return feed.Update{}, fmt.Errorf("mblog id %q: %w", m.ID.String(), err)
	}
	ts, err := time.Parse(time.RubyDate, m.CreatedAt)
	if err != nil {
		return feed.Update{}, fmt.Errorf("mblog created_at %q: %w", m.CreatedAt, err)
	}

	author := ""
	authorID := fallbackUID
	if m.User != nil {
		author = m.User.ScreenName
		if m.User.ID != 0 {
			authorID = m.User.ID
		}
	}
	if author == "" {
		author = strconv.FormatUint(authorID, 10)
	}

	pics := make([]string, 0, len(m.Pics))
	for _, p := range m.Pics {
		if p.URL != "" {
			pics = append(pics, p.URL)
		}
	}

	return feed.Update{
		ID:          id,
		Timestamp:   ts.Unix(),
		Author:      author,
		AuthorID:    authorID,
		Description: stripTags(m.Text),
		Pictures:    pics,
		Permalink:   fmt.Sprintf("https://m.weibo.cn/detail/%d", id),
	}, nil
}

var tagRe = regexp.MustCompile(`<[^>]*>`)

func stripTags(s string) string {
	return strings.TrimSpace(tagRe.ReplaceAllString(s, ""))
}

// containerInfo discovers the (containerid, uid) pair for the profile.
// The mapping never changes, so it is resolved once per process.
func (c *Client) containerInfo(ctx context.Context) (string, string, error) {
	c.mu.Lock()
	if c.containerID != "" {
		cid, uid := c.containerID, c.uid
		c.mu.Unlock()
		return cid, uid, nil
	}
	c.mu.Unlock()

	uid, err := UIDFromProfileURL(c.profileURL)
	if err != nil {
		return "", "", err
	}

	// Visiting the profile sets a cookie that embeds the fallback fid.
	if err := c.touch(ctx, c.profileURL); err != nil {
		return "", "", err
	}
	containerID, err := c.containerIDFromCookies()
	if err != nil {
		return "", "", err
	}

	// Prefer the dedicated "weibo" tab's container when the index exposes one.
	var env indexEnvelope
	if err := c.getJSON(ctx, fmt.Sprintf(indexURLFormat, uid, uid, containerID), &env); err != nil {
		return "", "", err
	}
	if env.Data.TabsInfo != nil {
		for _, tab := range env.Data.TabsInfo.Tabs {
			if tab.TabType == "weibo" && tab.ContainerID != "" {
				containerID = tab.ContainerID
			}
		}
	}

	c.mu.Lock()
	c.containerID, c.uid = containerID, uid
	c.mu.Unlock()
	return containerID, uid, nil
}

// UIDFromProfileURL extracts the tracked uid from the configured profile
// url. Callers use it to derive stable cursor keys without a network call.
func UIDFromProfileURL(profile string) (string, error) {
	u, err := url.Parse(profile)
	if err != nil {
		return "", fmt.Errorf("weibo: profile url: %w", err)
	}
	uid := u.Query().Get("uid")
	if uid == "" {
		return "", errors.New("weibo: profile url has no uid parameter")
	}
	return uid, nil
}

func (c *Client) containerIDFromCookies() (string, error) {
	u, err := url.Parse(c.profileURL)
	if err != nil {
		return "", err
	}
	if c.http.Jar == nil {
		return "", errors.New("weibo: no cookie jar")
	}
	for _, ck := range c.http.Jar.Cookies(u) {
		if m := containerIDRe.FindStringSubmatch(ck.Value); m != nil {
			return m[1], nil
		}
	}
	return "", errors.New("weibo: container id not found in cookies")
}

func (c *Client) touch(ctx context.Context, rawURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("weibo: GET %s: http %d", rawURL, resp.StatusCode)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("weibo: GET %s: http %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("weibo: GET %s: decode: %w", rawURL, err)
	}
	return nil
}
