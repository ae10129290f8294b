package outbox

const activityStartedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ActivityStarted",
  "type": "object",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "activity_type", "started_at"],
  "additionalProperties": false
}`

const activityCompletedSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ActivityCompleted",
  "type": "object",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "activity_type": {"type": "string"},
    "started_at": {"type": "string", "format": "date-time"},
    "ended_at": {"type": "string", "format": "date-time"},
    "distance_m": {"type": "number"},
    "calories_burned": {"type": "number"},
    "step_count": {"type": "integer"},
    "altitude_gain_m": {"type": "number"},
    "duration_seconds": {"type": "number"}
  },
  "required": ["activity_id", "user_id", "activity_type", "started_at", "ended_at", "distance_m", "calories_burned", "step_count", "altitude_gain_m", "duration_seconds"],
  "additionalProperties": false
}`

const activityCancelledSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ActivityCancelled",
  "type": "object",
  "properties": {
    "activity_id": {"type": "string"},
    "user_id": {"type": "string"},
    "occurred_at": {"type": "string", "format": "date-time"}
  },
  "required": ["activity_id", "user_id", "occurred_at"],
  "additionalProperties": false
}`
