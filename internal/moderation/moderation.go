// Package moderation wraps privileged meeting operations with an
// authorization check and notifies the media plane once a decision commits.
package moderation

import (
	"context"
	"errors"
	"log"

	"github.com/npezzotti/go-meetsignal/internal/database"
	"github.com/npezzotti/go-meetsignal/internal/media"
	"github.com/npezzotti/go-meetsignal/internal/registry"
)

// ErrNotAllowed means the actor holds no moderator privileges in the
// meeting and no platform-level admin capability.
var ErrNotAllowed = errors.New("not allowed")

type Gateway struct {
	log   *log.Logger
	reg   *registry.Registry
	media media.Notifier
}

func NewGateway(logger *log.Logger, reg *registry.Registry, notifier media.Notifier) *Gateway {
	return &Gateway{
		log:   logger,
		reg:   reg,
		media: notifier,
	}
}

// authorize admits actors who are a current moderator of the meeting or a
// platform admin. The actor's identity is asserted by the upstream gateway;
// this only decides capability.
func (g *Gateway) authorize(meetingId, actorId string) error {
	isMod, err := g.reg.IsModerator(meetingId, actorId)
	if err != nil {
		return err
	}
	if isMod {
		return nil
	}

	isAdmin, err := g.reg.IsPlatformAdmin(actorId)
	if err != nil {
		return err
	}
	if isAdmin {
		return nil
	}

	return ErrNotAllowed
}

// Kick removes a participant on a moderator's authority. The media plane
// disconnect is best effort: the participant is already KICKED on record,
// and a lingering media session is cleaned up by the liveness sweep.
func (g *Gateway) Kick(ctx context.Context, meetingId, actorId, targetUserId, reason string) error {
	if err := g.authorize(meetingId, actorId); err != nil {
		return err
	}

	meeting, err := g.reg.Meeting(meetingId)
	if err != nil {
		return err
	}

	if err := g.reg.Depart(meetingId, targetUserId, database.ParticipantKicked, actorId, reason); err != nil {
		return err
	}

	if err := g.media.ForceDisconnect(ctx, meeting.RoomId, targetUserId); err != nil {
		g.log.Printf("media disconnect for user %q in room %q: %v", targetUserId, meeting.RoomId, err)
	}

	return nil
}

// End gracefully ends a meeting on a moderator's authority.
func (g *Gateway) End(ctx context.Context, meetingId, actorId string) error {
	if err := g.authorize(meetingId, actorId); err != nil {
		return err
	}

	meeting, err := g.reg.Meeting(meetingId)
	if err != nil {
		return err
	}

	if err := g.reg.End(meetingId, actorId); err != nil {
		return err
	}

	if err := g.media.TeardownRoom(ctx, meeting.RoomId); err != nil {
		g.log.Printf("media teardown for room %q: %v", meeting.RoomId, err)
	}

	return nil
}

// Terminate force-ends a meeting on a moderator's or admin's authority.
func (g *Gateway) Terminate(ctx context.Context, meetingId, actorId, reason string) error {
	if err := g.authorize(meetingId, actorId); err != nil {
		return err
	}

	meeting, err := g.reg.Meeting(meetingId)
	if err != nil {
		return err
	}

	if err := g.reg.Terminate(meetingId, actorId, reason); err != nil {
		return err
	}

	if err := g.media.TeardownRoom(ctx, meeting.RoomId); err != nil {
		g.log.Printf("media teardown for room %q: %v", meeting.RoomId, err)
	}

	return nil
}

// SetLock locks or unlocks admission on a moderator's authority.
func (g *Gateway) SetLock(meetingId, actorId string, locked bool) error {
	if err := g.authorize(meetingId, actorId); err != nil {
		return err
	}

	return g.reg.SetLock(meetingId, locked, actorId)
}
