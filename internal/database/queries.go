package database

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
)

const (
	meetingColumns = "id, room_id, subject_type, subject_id, org_id, host_user_id, " +
		"status, max_participants, locked, started_at, ended_at"
	participantColumns = "id, meeting_id, user_id, user_name, user_avatar, role, " +
		"status, joined_at, left_at, kicked_by, kick_reason"
	recordingColumns = "id, meeting_id, session_id, status, started_by, stopped_by, " +
		"started_at, stopped_at, duration_seconds, storage_location, file_size, error"
)

// IsUniqueViolation reports whether err is a postgres unique constraint
// violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation"
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (Meeting, error) {
	var m Meeting
	var endedAt sql.NullTime
	err := row.Scan(
		&m.Id,
		&m.RoomId,
		&m.SubjectType,
		&m.SubjectId,
		&m.OrgId,
		&m.HostUserId,
		&m.Status,
		&m.MaxParticipants,
		&m.Locked,
		&m.StartedAt,
		&endedAt,
	)
	if endedAt.Valid {
		m.EndedAt = endedAt.Time
	}
	return m, err
}

func scanParticipant(row scanner) (Participant, error) {
	var p Participant
	var leftAt sql.NullTime
	err := row.Scan(
		&p.Id,
		&p.MeetingId,
		&p.UserId,
		&p.UserName,
		&p.UserAvatar,
		&p.Role,
		&p.Status,
		&p.JoinedAt,
		&leftAt,
		&p.KickedBy,
		&p.KickReason,
	)
	if leftAt.Valid {
		p.LeftAt = leftAt.Time
	}
	return p, err
}

func scanRecording(row scanner) (Recording, error) {
	var r Recording
	var stoppedAt sql.NullTime
	err := row.Scan(
		&r.Id,
		&r.MeetingId,
		&r.SessionId,
		&r.Status,
		&r.StartedBy,
		&r.StoppedBy,
		&r.StartedAt,
		&stoppedAt,
		&r.DurationSeconds,
		&r.StorageLocation,
		&r.FileSize,
		&r.Error,
	)
	if stoppedAt.Valid {
		r.StoppedAt = stoppedAt.Time
	}
	return r, err
}

func appendEventTx(tx *sql.Tx, event MeetingEvent) error {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal event metadata: %w", err)
	}

	ts := event.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	_, err = tx.Exec(
		"INSERT INTO meeting_events (id, meeting_id, event_type, user_id, target_user_id, metadata, event_time, ingested_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		event.Id,
		event.MeetingId,
		event.EventType,
		event.UserId,
		event.TargetUserId,
		raw,
		ts,
		time.Now().UTC(),
	)
	return err
}

func (db *PgMeetSignalRepository) CreateMeeting(params CreateMeetingParams, event MeetingEvent) (Meeting, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Meeting{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO meetings (id, room_id, subject_type, subject_id, org_id, host_user_id, max_participants, started_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING "+meetingColumns,
		params.Id,
		params.RoomId,
		params.SubjectType,
		params.SubjectId,
		params.OrgId,
		params.HostUserId,
		params.MaxParticipants,
		time.Now().UTC(),
	)

	m, err := scanMeeting(row)
	if err != nil {
		return Meeting{}, err
	}

	if err := appendEventTx(tx, event); err != nil {
		return Meeting{}, err
	}

	return m, tx.Commit()
}

func (db *PgMeetSignalRepository) GetMeeting(meetingId string) (Meeting, error) {
	row := db.conn.QueryRow(
		"SELECT "+meetingColumns+" FROM meetings WHERE id = $1 LIMIT 1",
		meetingId,
	)
	return scanMeeting(row)
}

func (db *PgMeetSignalRepository) GetMeetingByRoomId(roomId string) (Meeting, error) {
	row := db.conn.QueryRow(
		"SELECT "+meetingColumns+" FROM meetings WHERE room_id = $1 LIMIT 1",
		roomId,
	)
	return scanMeeting(row)
}

func (db *PgMeetSignalRepository) ListActiveMeetings() ([]Meeting, error) {
	rows, err := db.conn.Query(
		"SELECT " + meetingColumns + " FROM meetings " +
			"WHERE status IN ('WAITING', 'ACTIVE') ORDER BY started_at DESC",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var meetings []Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		meetings = append(meetings, m)
	}

	return meetings, rows.Err()
}

func (db *PgMeetSignalRepository) ActivateMeeting(meetingId string) error {
	_, err := db.conn.Exec(
		"UPDATE meetings SET status = $2 WHERE id = $1 AND status = $3",
		meetingId,
		MeetingActive,
		MeetingWaiting,
	)
	return err
}

func (db *PgMeetSignalRepository) SetMeetingLock(meetingId string, locked bool, event MeetingEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE meetings SET locked = $2 WHERE id = $1",
		meetingId,
		locked,
	); err != nil {
		return err
	}

	if err := appendEventTx(tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgMeetSignalRepository) EndMeeting(meetingId string, endedAt time.Time, event MeetingEvent) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE meetings SET status = $2, ended_at = $3 WHERE id = $1 AND status IN ('WAITING', 'ACTIVE')",
		meetingId,
		MeetingEnded,
		endedAt,
	); err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		"UPDATE participants SET status = $2, left_at = $3 WHERE meeting_id = $1 AND status = $4",
		meetingId,
		ParticipantLeft,
		endedAt,
		ParticipantJoined,
	)
	if err != nil {
		return 0, err
	}

	departed, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := appendEventTx(tx, event); err != nil {
		return 0, err
	}

	return int(departed), tx.Commit()
}

func (db *PgMeetSignalRepository) TerminateMeeting(meetingId string, endedAt time.Time, kickedBy, reason string, event MeetingEvent) (int, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"UPDATE meetings SET status = $2, ended_at = $3 WHERE id = $1 AND status IN ('WAITING', 'ACTIVE')",
		meetingId,
		MeetingTerminated,
		endedAt,
	); err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		"UPDATE participants SET status = $2, left_at = $3, kicked_by = $4, kick_reason = $5 "+
			"WHERE meeting_id = $1 AND status = $6",
		meetingId,
		ParticipantKicked,
		endedAt,
		kickedBy,
		reason,
		ParticipantJoined,
	)
	if err != nil {
		return 0, err
	}

	kicked, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := appendEventTx(tx, event); err != nil {
		return 0, err
	}

	return int(kicked), tx.Commit()
}

func (db *PgMeetSignalRepository) CreateParticipant(params CreateParticipantParams, event MeetingEvent) (Participant, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Participant{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO participants (id, meeting_id, user_id, user_name, user_avatar, role, joined_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING "+participantColumns,
		params.Id,
		params.MeetingId,
		params.UserId,
		params.UserName,
		params.UserAvatar,
		params.Role,
		time.Now().UTC(),
	)

	p, err := scanParticipant(row)
	if err != nil {
		return Participant{}, err
	}

	if err := appendEventTx(tx, event); err != nil {
		return Participant{}, err
	}

	return p, tx.Commit()
}

func (db *PgMeetSignalRepository) GetJoinedParticipant(meetingId, userId string) (Participant, error) {
	row := db.conn.QueryRow(
		"SELECT "+participantColumns+" FROM participants "+
			"WHERE meeting_id = $1 AND user_id = $2 AND status = $3 "+
			"ORDER BY joined_at DESC LIMIT 1",
		meetingId,
		userId,
		ParticipantJoined,
	)
	return scanParticipant(row)
}

func (db *PgMeetSignalRepository) HasParticipantRecord(meetingId, userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM participants WHERE meeting_id = $1 AND user_id = $2 AND status != $3)",
		meetingId,
		userId,
		ParticipantKicked,
	).Scan(&exists)
	return exists, err
}

func (db *PgMeetSignalRepository) CountJoined(meetingId string) (int, error) {
	var count int
	err := db.conn.QueryRow(
		"SELECT COUNT(*) FROM participants WHERE meeting_id = $1 AND status = $2",
		meetingId,
		ParticipantJoined,
	).Scan(&count)
	return count, err
}

func (db *PgMeetSignalRepository) listParticipants(query string, args ...any) ([]Participant, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var participants []Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}

	return participants, rows.Err()
}

func (db *PgMeetSignalRepository) ListJoinedParticipants(meetingId string) ([]Participant, error) {
	return db.listParticipants(
		"SELECT "+participantColumns+" FROM participants "+
			"WHERE meeting_id = $1 AND status = $2 ORDER BY joined_at ASC",
		meetingId,
		ParticipantJoined,
	)
}

func (db *PgMeetSignalRepository) ListParticipants(meetingId string) ([]Participant, error) {
	return db.listParticipants(
		"SELECT "+participantColumns+" FROM participants "+
			"WHERE meeting_id = $1 ORDER BY joined_at ASC",
		meetingId,
	)
}

func (db *PgMeetSignalRepository) DepartParticipant(participantId, status string, leftAt time.Time, kickedBy, kickReason string, event MeetingEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE participants SET status = $2, left_at = $3, kicked_by = $4, kick_reason = $5 "+
			"WHERE id = $1 AND status = $6",
		participantId,
		status,
		leftAt,
		kickedBy,
		kickReason,
		ParticipantJoined,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return sql.ErrNoRows
	}

	if err := appendEventTx(tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgMeetSignalRepository) HasModeratorGrant(roomId, userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM moderator_grants WHERE room_id = $1 AND user_id = $2)",
		roomId,
		userId,
	).Scan(&exists)
	return exists, err
}

func (db *PgMeetSignalRepository) IsPlatformAdmin(userId string) (bool, error) {
	var exists bool
	err := db.conn.QueryRow(
		"SELECT EXISTS (SELECT 1 FROM platform_admins WHERE user_id = $1)",
		userId,
	).Scan(&exists)
	return exists, err
}

func (db *PgMeetSignalRepository) CreateRecording(params CreateRecordingParams, event MeetingEvent) (Recording, error) {
	tx, err := db.conn.Begin()
	if err != nil {
		return Recording{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRow(
		"INSERT INTO recordings (id, meeting_id, session_id, status, started_by, started_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+recordingColumns,
		params.Id,
		params.MeetingId,
		params.SessionId,
		params.Status,
		params.StartedBy,
		time.Now().UTC(),
	)

	r, err := scanRecording(row)
	if err != nil {
		return Recording{}, err
	}

	if err := appendEventTx(tx, event); err != nil {
		return Recording{}, err
	}

	return r, tx.Commit()
}

func (db *PgMeetSignalRepository) GetRecording(recordingId string) (Recording, error) {
	row := db.conn.QueryRow(
		"SELECT "+recordingColumns+" FROM recordings WHERE id = $1 LIMIT 1",
		recordingId,
	)
	return scanRecording(row)
}

func (db *PgMeetSignalRepository) GetRecordingBySessionId(sessionId string) (Recording, error) {
	row := db.conn.QueryRow(
		"SELECT "+recordingColumns+" FROM recordings WHERE session_id = $1 LIMIT 1",
		sessionId,
	)
	return scanRecording(row)
}

func (db *PgMeetSignalRepository) GetActiveRecording(meetingId string) (Recording, error) {
	row := db.conn.QueryRow(
		"SELECT "+recordingColumns+" FROM recordings "+
			"WHERE meeting_id = $1 AND status IN ('PENDING', 'RECORDING') LIMIT 1",
		meetingId,
	)
	return scanRecording(row)
}

func (db *PgMeetSignalRepository) UpdateRecording(rec Recording, event *MeetingEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stoppedAt any
	if !rec.StoppedAt.IsZero() {
		stoppedAt = rec.StoppedAt
	}

	if _, err := tx.Exec(
		"UPDATE recordings SET status = $2, stopped_by = $3, stopped_at = $4, duration_seconds = $5, "+
			"storage_location = $6, file_size = $7, error = $8 WHERE id = $1",
		rec.Id,
		rec.Status,
		rec.StoppedBy,
		stoppedAt,
		rec.DurationSeconds,
		rec.StorageLocation,
		rec.FileSize,
		rec.Error,
	); err != nil {
		return err
	}

	if event != nil {
		if err := appendEventTx(tx, *event); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *PgMeetSignalRepository) ListMeetingRecordings(meetingId string) ([]Recording, error) {
	rows, err := db.conn.Query(
		"SELECT "+recordingColumns+" FROM recordings WHERE meeting_id = $1 ORDER BY started_at DESC",
		meetingId,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recordings []Recording
	for rows.Next() {
		r, err := scanRecording(rows)
		if err != nil {
			return nil, err
		}
		recordings = append(recordings, r)
	}

	return recordings, rows.Err()
}

func (db *PgMeetSignalRepository) AppendEvent(event MeetingEvent) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := appendEventTx(tx, event); err != nil {
		return err
	}

	return tx.Commit()
}

func (db *PgMeetSignalRepository) ListEvents(meetingId string, limit, offset int) ([]MeetingEvent, error) {
	rows, err := db.conn.Query(
		"SELECT id, meeting_id, event_type, user_id, target_user_id, metadata, event_time, ingested_at "+
			"FROM meeting_events WHERE meeting_id = $1 ORDER BY event_time ASC LIMIT $2 OFFSET $3",
		meetingId,
		limit,
		offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []MeetingEvent
	for rows.Next() {
		var e MeetingEvent
		var raw []byte
		if err := rows.Scan(
			&e.Id,
			&e.MeetingId,
			&e.EventType,
			&e.UserId,
			&e.TargetUserId,
			&raw,
			&e.Timestamp,
			&e.IngestedAt,
		); err != nil {
			return nil, err
		}

		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal event metadata: %w", err)
			}
		}

		events = append(events, e)
	}

	return events, rows.Err()
}
