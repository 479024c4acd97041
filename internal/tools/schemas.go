package tools

const getAvailableSlotsSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$", "description": "Day to search, YYYY-MM-DD"}
  },
  "required": ["date"]
}`

const reserveSlotSchema = `{
  "type": "object",
  "properties": {
    "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$", "description": "Day of the appointment, YYYY-MM-DD"},
    "time": {"type": "string", "pattern": "^\\d{2}:\\d{2}$", "description": "Start time, HH:MM"},
    "service": {"type": "string", "description": "Requested service"}
  },
  "required": ["date", "time"]
}`

const createBookingPaymentSchema = `{
  "type": "object",
  "properties": {
    "reservationId": {"type": "string", "pattern": "^[a-fA-F0-9]{24}$"}
  },
  "required": ["reservationId"]
}`

const sendConfirmationEmailSchema = `{
  "type": "object",
  "properties": {
    "reservationId": {"type": "string", "minLength": 1}
  },
  "required": ["reservationId"]
}`

const sendAdminConfEmailSchema = `{
  "type": "object",
  "properties": {
    "email": {"type": "string", "format": "email"},
    "appointmentDetails": {
      "type": "object",
      "properties": {
        "date": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
        "time": {"type": "string", "pattern": "^\\d{2}:\\d{2}$"},
        "service": {"type": "string"}
      },
      "required": ["date", "time"]
    }
  },
  "required": ["email", "appointmentDetails"]
}`

const validateUserSchema = `{
  "type": "object",
  "properties": {
    "username": {"type": "string", "minLength": 1},
    "password": {"type": "string", "minLength": 1}
  },
  "required": ["username", "password"]
}`
