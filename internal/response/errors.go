package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrPermissionDenied      ErrCode = "PERMISSION_DENIED"
	ErrParticipantAccessOnly ErrCode = "PARTICIPANT_ACCESS_ONLY"
	ErrAdminAccessOnly       ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Exam session ──────────────────────────────────────────────────
	ErrExamNotFound         ErrCode = "EXAM_NOT_FOUND"
	ErrExamNotAssigned      ErrCode = "EXAM_NOT_ASSIGNED"
	ErrExamNotStarted       ErrCode = "EXAM_NOT_STARTED"
	ErrWindowClosed         ErrCode = "WINDOW_CLOSED"
	ErrAlreadySubmitted     ErrCode = "ALREADY_SUBMITTED"
	ErrSessionNotInProgress ErrCode = "SESSION_NOT_IN_PROGRESS"
	ErrQuestionNotInExam    ErrCode = "QUESTION_NOT_IN_EXAM"
	ErrInvalidOption        ErrCode = "INVALID_OPTION"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Username atau kata sandi salah."
	case ErrSessionActive:
		return "Anda sudah login di perangkat lain."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token tidak valid."
	case ErrTokenExpired:
		return "Token sudah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrPermissionDenied:
		return "Anda tidak memiliki izin untuk melakukan aksi ini."
	case ErrParticipantAccessOnly:
		return "Akses hanya untuk peserta ujian."
	case ErrAdminAccessOnly:
		return "Akses hanya untuk admin."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Data yang dikirim tidak valid."
	case ErrInvalidID:
		return "ID tidak valid."
	case ErrInvalidPayload:
		return "Format payload tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Data tidak ditemukan."

	// ─── Exam session ──────────────────────────────────────────────────
	case ErrExamNotFound:
		return "Ujian tidak ditemukan."
	case ErrExamNotAssigned:
		return "Ujian ini tidak terdaftar untuk Anda."
	case ErrExamNotStarted:
		return "Ujian belum dimulai."
	case ErrWindowClosed:
		return "Waktu ujian telah berakhir."
	case ErrAlreadySubmitted:
		return "Anda sudah menyelesaikan ujian ini."
	case ErrSessionNotInProgress:
		return "Sesi ujian tidak sedang berlangsung."
	case ErrQuestionNotInExam:
		return "Soal tidak termasuk dalam ujian ini."
	case ErrInvalidOption:
		return "Pilihan jawaban harus salah satu dari A sampai E."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan pada server."

	default:
		return "Terjadi kesalahan."
	}
}
