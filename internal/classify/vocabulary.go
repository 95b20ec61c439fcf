package classify

// displayTitles maps known server titles to the dashboard's display vocabulary.
// Lookup is exact on the trimmed title; unknown titles pass through unchanged.
var displayTitles = map[string]string{
	"Campaign Approved":            "Chiến dịch được phê duyệt",
	"Campaign Rejected":            "Chiến dịch bị từ chối",
	"Campaign Completed":           "Chiến dịch đã hoàn thành",
	"Campaign Cancelled":           "Chiến dịch đã bị hủy",
	"Campaign Completion Request":  "Yêu cầu hoàn thành chiến dịch",
	"New Vaccination Campaign":     "Chiến dịch tiêm chủng mới",
	"Vaccination Consent Required": "Cần xác nhận tiêm chủng",
	"Vaccination Result":           "Kết quả tiêm chủng",
	"Health Check Approved":        "Kiểm tra sức khỏe được phê duyệt",
	"Health Check Rejected":        "Kiểm tra sức khỏe bị từ chối",
	"Health Check Scheduled":       "Lịch kiểm tra sức khỏe",
	"Health Check Result":          "Kết quả kiểm tra sức khỏe",
	"Medication Request Approved":  "Yêu cầu dùng thuốc được phê duyệt",
	"Medication Request Rejected":  "Yêu cầu dùng thuốc bị từ chối",
	"Medication Reminder":          "Nhắc nhở uống thuốc",
	"Medical Event":                "Sự kiện y tế",
	"Restock Request Approved":     "Yêu cầu bổ sung vật tư được phê duyệt",
	"Restock Request Rejected":     "Yêu cầu bổ sung vật tư bị từ chối",
}

// Phrase tables. Entries are normalized at init, so spelling variants of the
// same word (khỏe/khoẻ, hủy/huỷ) are listed separately.
var (
	completionRequestPhrases = normalizeAll(
		"yêu cầu hoàn thành",
		"đề nghị hoàn thành",
		"xác nhận hoàn thành",
		"chờ duyệt",
		"chờ phê duyệt",
		"completion request",
		"request to complete",
		"pending approval",
	)

	campaignStatusPhrases = normalizeAll(
		"hoàn thành chiến dịch",
		"chiến dịch đã hoàn thành",
		"chiến dịch hoàn thành",
		"chiến dịch đã kết thúc",
		"chiến dịch đã bị hủy",
		"chiến dịch đã bị huỷ",
		"trạng thái chiến dịch",
		"campaign completed",
		"campaign has been completed",
		"campaign status",
		"campaign closed",
		"campaign cancelled",
	)

	medicationKeywords = normalizeAll(
		"thuốc",
		"medication",
		"medicine",
		"prescription",
	)

	vaccinationKeywords = normalizeAll(
		"tiêm chủng",
		"tiêm",
		"vắc xin",
		"vắc-xin",
		"vaccine",
		"vaccination",
		"immunization",
		"chiến dịch",
		"campaign",
	)

	healthCheckKeywords = normalizeAll(
		"khám sức khỏe",
		"khám sức khoẻ",
		"kiểm tra sức khỏe",
		"kiểm tra sức khoẻ",
		"sức khỏe",
		"sức khoẻ",
		"health check",
		"health-check",
		"checkup",
		"check-up",
	)

	resultKeywords = normalizeAll(
		"kết quả",
		"result",
	)

	highPriorityWords = normalizeAll(
		"từ chối",
		"bị hủy",
		"bị huỷ",
		"hủy bỏ",
		"huỷ bỏ",
		"thất bại",
		"không thành công",
		"rejected",
		"declined",
		"failed",
		"failure",
		"cancelled",
		"canceled",
	)

	mediumPriorityWords = normalizeAll(
		"phê duyệt",
		"được duyệt",
		"đã duyệt",
		"chấp thuận",
		"cập nhật",
		"lên lịch",
		"lịch",
		"hoàn thành",
		"approved",
		"approval",
		"update",
		"schedule",
		"complete",
		"completion",
	)
)
