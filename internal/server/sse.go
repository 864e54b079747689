package server

import (
	"time"

	"github.com/gin-gonic/gin"
)

const keepAliveInterval = 25 * time.Second

// Events streams playback changes as server-sent events so surfaces can
// switch from polling to push. The connection opens with a full status
// snapshot, then delivers state, track, volume, and error events until the
// client disconnects.
func (a *API) Events(c *gin.Context) {
	sub := a.hub.Subscribe()
	defer a.hub.Unsubscribe(sub)

	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.SSEvent("status", a.hub.Status())
	c.Writer.Flush()

	clientGone := c.Request.Context().Done()
	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case <-clientGone:
			return
		case <-sub.Done:
			return
		case e := <-sub.StateChanged:
			c.SSEvent("state", gin.H{
				"previous": e.Previous.String(),
				"current":  e.Current.String(),
				"snapshot": a.hub.Status(),
			})
		case e := <-sub.TrackChanged:
			c.SSEvent("track", gin.H{
				"media_id": e.MediaID,
				"position": e.Position,
				"track":    e.Track,
			})
		case e := <-sub.VolumeChanged:
			c.SSEvent("volume", gin.H{"volume": e.Volume})
		case e := <-sub.Error:
			c.SSEvent("error", gin.H{"media_id": e.MediaID, "message": e.Message})
		case <-keepAlive.C:
			c.SSEvent("ping", time.Now().Unix())
		}
		c.Writer.Flush()
	}
}
