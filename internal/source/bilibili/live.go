package bilibili

import (
	"context"
	"fmt"

	"ailurus/internal/feed"
	logx "ailurus/pkg/logx"
)

// Room ids below this bound are short aliases that need one resolution
// lookup via room_init.
const shortIDBound = 10000

type roomInitEnvelope struct {
	Data struct {
		RoomID uint64 `json:"room_id"`
	} `json:"data"`
}

type roomInfoEnvelope struct {
	Data struct {
		Title      string `json:"title"`
		LiveStatus int    `json:"live_status"`
		LiveTime   string `json:"live_time"`
		UserCover  string `json:"user_cover"`
	} `json:"data"`
}

type anchorEnvelope struct {
	Data struct {
		Info struct {
			UID   uint64 `json:"uid"`
			Uname string `json:"uname"`
		} `json:"info"`
	} `json:"data"`
}

// LiveStatus returns the room's point-in-time live state. Short aliases
// are resolved once and remembered in the client's ShortIDCache.
func (c *Client) LiveStatus(ctx context.Context, roomID uint64) (feed.LiveSignal, error) {
	roomID, err := c.resolveRoomID(ctx, roomID)
	if err != nil {
		return feed.LiveSignal{}, err
	}
	referer := fmt.Sprintf("https://live.bilibili.com/%d", roomID)

	var room roomInfoEnvelope
	url := fmt.Sprintf("https://api.live.bilibili.com/room/v1/Room/get_info?room_id=%d&from=room", roomID)
	if err := c.getJSON(ctx, url, referer, &room); err != nil {
		return feed.LiveSignal{}, err
	}

	var anchor anchorEnvelope
	url = fmt.Sprintf("https://api.live.bilibili.com/live_user/v1/UserInfo/get_anchor_in_room?roomid=%d", roomID)
	if err := c.getJSON(ctx, url, referer, &anchor); err != nil {
		return feed.LiveSignal{}, err
	}

	return feed.LiveSignal{
		RoomID:    roomID,
		Live:      room.Data.LiveStatus == 1,
		Title:     room.Data.Title,
		StartTime: room.Data.LiveTime,
		Cover:     room.Data.UserCover,
		Streamer:  anchor.Data.Info.Uname,
	}, nil
}

func (c *Client) resolveRoomID(ctx context.Context, roomID uint64) (uint64, error) {
	if roomID >= shortIDBound {
		return roomID, nil
	}
	if real, ok := c.shortIDs.lookup(roomID); ok {
		return real, nil
	}

	var init roomInitEnvelope
	url := fmt.Sprintf("https://api.live.bilibili.com/room/v1/Room/room_init?id=%d", roomID)
	referer := fmt.Sprintf("https://live.bilibili.com/%d", roomID)
	if err := c.getJSON(ctx, url, referer, &init); err != nil {
		return 0, err
	}
	if init.Data.RoomID == 0 {
		return 0, fmt.Errorf("bilibili: room_init returned no room id for %d", roomID)
	}
	c.shortIDs.store(roomID, init.Data.RoomID)
	c.log.Debug("short room id resolved",
		logx.Uint64("short", roomID),
		logx.Uint64("room", init.Data.RoomID))
	return init.Data.RoomID, nil
}
