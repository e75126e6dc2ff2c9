package server

import (
	"encoding/json"
	"os"
	"path/filepath"

	"renderwatch/internal/core/output"

	"github.com/gofiber/fiber/v2"
)

// StatusHandler answers job status queries from the output directory
// alone: present metadata without a marker means in flight; a marker
// means the artifact set is complete.
type StatusHandler struct {
	writer *output.Writer
}

func NewStatusHandler(writer *output.Writer) *StatusHandler {
	return &StatusHandler{writer: writer}
}

type jobStatusResponse struct {
	Success  bool             `json:"success"`
	JobID    string           `json:"job_id"`
	Status   string           `json:"status"` // processing | ok | error
	Error    string           `json:"error,omitempty"`
	Metadata *output.Metadata `json:"metadata,omitempty"`
}

func (h *StatusHandler) HandleGetJob(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"error":   "job id is required",
		})
	}

	dir := h.writer.JobDir(jobID)
	var meta output.Metadata
	if err := readJSON(filepath.Join(dir, output.MetadataFile), &meta); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "not_found",
		})
	}

	resp := jobStatusResponse{Success: true, JobID: jobID, Metadata: &meta}

	var marker output.Marker
	if err := readJSON(filepath.Join(dir, output.MarkerFile), &marker); err != nil {
		// Metadata without a marker: still in flight (or a crashed
		// process; callers treat that as a timeout condition).
		resp.Status = "processing"
		return c.Status(fiber.StatusAccepted).JSON(resp)
	}

	resp.Status = marker.Status
	resp.Error = marker.Error
	return c.JSON(resp)
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
