package bilibili

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ailurus/internal/feed"
	logx "ailurus/pkg/logx"
)

// The space_history endpoint wraps each item's real payload in a JSON
// string ("card"), whose shape depends on the item kind (original post,
// repost, video, article). Only the fields the normalizer consumes are
// declared here.

type dynamicEnvelope struct {
	Data struct {
		Cards []dynamicCard `json:"cards"`
	} `json:"data"`
}

type dynamicCard struct {
	Desc cardDesc `json:"desc"`
	Card string   `json:"card"`
}

type cardDesc struct {
	DynamicID   uint64       `json:"dynamic_id"`
	Timestamp   int64        `json:"timestamp"`
	UserProfile *userProfile `json:"user_profile"`
}

type userProfile struct {
	Info struct {
		UID   uint64 `json:"uid"`
		Uname string `json:"uname"`
	} `json:"info"`
}

type cardInner struct {
	User        *cardUser       `json:"user"`
	Item        *cardItem       `json:"item"`
	Title       string          `json:"title"`
	ShortLink   string          `json:"short_link"`
	ShortLinkV2 string          `json:"short_link_v2"`
	Pic         string          `json:"pic"`
	Origin      json.RawMessage `json:"origin"`
}

type cardOrigin struct {
	Item        *cardItem `json:"item"`
	Title       string    `json:"title"`
	ShortLink   string    `json:"short_link"`
	ShortLinkV2 string    `json:"short_link_v2"`
}

type cardItem struct {
	Description string        `json:"description"`
	Content     string        `json:"content"`
	Pictures    []cardPicture `json:"pictures"`
}

type cardUser struct {
	Name  string `json:"name"`
	Uname string `json:"uname"`
	UID   uint64 `json:"uid"`
}

type cardPicture struct {
	ImgSrc string `json:"img_src"`
}

// DynamicFeed returns the tracked uid's dynamic items, newest first.
//
// A card whose inner payload cannot be parsed is dropped with a warning;
// a transport or envelope error fails the whole call.
func (c *Client) DynamicFeed(ctx context.Context, uid uint64) ([]feed.Update, error) {
	url := fmt.Sprintf("https://api.vc.bilibili.com/dynamic_svr/v1/dynamic_svr/space_history?host_uid=%d", uid)
	referer := fmt.Sprintf("https://space.bilibili.com/%d", uid)

	var env dynamicEnvelope
	if err := c.getJSON(ctx, url, referer, &env); err != nil {
		return nil, err
	}

	updates := make([]feed.Update, 0, len(env.Data.Cards))
	for i, card := range env.Data.Cards {
		var inner cardInner
		if err := json.Unmarshal([]byte(card.Card), &inner); err != nil {
			c.log.Warn("dynamic card payload unparsable, skipping",
				logx.Int("index", i),
				logx.Uint64("dynamic_id", card.Desc.DynamicID),
				logx.Err(err))
			continue
		}
		var origin *cardOrigin
		if len(inner.Origin) > 0 {
			var o cardOrigin
			if err := json.Unmarshal(inner.Origin, &o); err != nil {
				c.log.Warn("dynamic origin payload unparsable, skipping card",
					logx.Int("index", i),
					logx.Uint64("dynamic_id", card.Desc.DynamicID),
					logx.Err(err))
				continue
			}
			origin = &o
		}
		updates = append(updates, normalizeCard(inner, origin, card.Desc, uid))
	}
	return updates, nil
}

// rule is one step of an ordered field-resolution chain: it either yields
// a value or defers to the next rule. The chains below encode the field
// precedence for each card shape; keep them flat.
type rule func() (string, bool)

func firstOf(rules ...rule) (string, bool) {
	for _, r := range rules {
		if v, ok := r(); ok {
			return v, true
		}
	}
	return "", false
}

func nonEmpty(s string) (string, bool) { return s, s != "" }

func normalizeCard(inner cardInner, origin *cardOrigin, desc cardDesc, uid uint64) feed.Update {
	return feed.Update{
		ID:          desc.DynamicID,
		Timestamp:   desc.Timestamp,
		Author:      resolveAuthor(inner, desc, uid),
		AuthorID:    resolveAuthorID(inner, desc),
		Description: resolveDescription(inner, origin),
		Pictures:    resolvePictures(inner, origin),
		Permalink:   fmt.Sprintf("https://t.bilibili.com/%d", desc.DynamicID),
	}
}

// Author precedence: display name, handle, profile name, then the tracked
// uid rendered as decimal.
func resolveAuthor(inner cardInner, desc cardDesc, uid uint64) string {
	v, ok := firstOf(
		func() (string, bool) {
			if inner.User == nil {
				return "", false
			}
			return nonEmpty(inner.User.Name)
		},
		func() (string, bool) {
			if inner.User == nil {
				return "", false
			}
			return nonEmpty(inner.User.Uname)
		},
		func() (string, bool) {
			if desc.UserProfile == nil {
				return "", false
			}
			return nonEmpty(desc.UserProfile.Info.Uname)
		},
	)
	if ok {
		return v
	}
	return strconv.FormatUint(uid, 10)
}

func resolveAuthorID(inner cardInner, desc cardDesc) uint64 {
	if inner.User != nil && inner.User.UID != 0 {
		return inner.User.UID
	}
	if desc.UserProfile != nil {
		return desc.UserProfile.Info.UID
	}
	return 0
}

// Description precedence: the item's own description; the item's free-text
// content, appended with " // " plus the repost target's description (or
// its title plus a parenthesized short link); the top-level title plus
// short link when no item payload exists at all.
func resolveDescription(inner cardInner, origin *cardOrigin) string {
	v, _ := firstOf(
		func() (string, bool) {
			if inner.Item == nil {
				return "", false
			}
			return nonEmpty(inner.Item.Description)
		},
		func() (string, bool) {
			if inner.Item == nil || inner.Item.Content == "" {
				return "", false
			}
			content := inner.Item.Content
			if origin != nil {
				if origin.Item != nil && origin.Item.Description != "" {
					return content + " // " + origin.Item.Description, true
				}
				if origin.Title != "" {
					return content + " // " + origin.Title + parenLink(origin.ShortLinkV2, origin.ShortLink), true
				}
			}
			return content, true
		},
		func() (string, bool) {
			if inner.Title == "" {
				return "", false
			}
			return inner.Title + parenLink(inner.ShortLinkV2, inner.ShortLink), true
		},
	)
	return v
}

func parenLink(v2, v1 string) string {
	if v2 != "" {
		return "(" + v2 + ")"
	}
	if v1 != "" {
		return "(" + v1 + ")"
	}
	return ""
}

// Picture precedence: the item's picture list, the legacy single "pic"
// field wrapped into a one-element list, the repost target's pictures.
func resolvePictures(inner cardInner, origin *cardOrigin) []string {
	if inner.Item != nil && len(inner.Item.Pictures) > 0 {
		return pictureURLs(inner.Item.Pictures)
	}
	if inner.Pic != "" {
		return []string{inner.Pic}
	}
	if origin != nil && origin.Item != nil && len(origin.Item.Pictures) > 0 {
		return pictureURLs(origin.Item.Pictures)
	}
	return nil
}

func pictureURLs(pics []cardPicture) []string {
	out := make([]string, 0, len(pics))
	for _, p := range pics {
		if p.ImgSrc != "" {
			out = append(out, p.ImgSrc)
		}
	}
	return out
}
