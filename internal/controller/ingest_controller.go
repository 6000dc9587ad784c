package controller

import (
	"io"
	"strings"

	"repochat-be/internal/constant"
	"repochat-be/internal/dto"
	"repochat-be/internal/pkg/serverutils"
	"repochat-be/internal/service"
	"repochat-be/pkg/apperror"

	"github.com/gofiber/fiber/v2"
)

type IIngestController interface {
	RegisterRoutes(r fiber.Router)
	IngestRepository(ctx *fiber.Ctx) error
	IngestFile(ctx *fiber.Ctx) error
	DeleteSession(ctx *fiber.Ctx) error
}

type ingestController struct {
	ingestService  service.IIngestService
	chatbotService service.IChatbotService
}

func NewIngestController(ingestService service.IIngestService, chatbotService service.IChatbotService) IIngestController {
	return &ingestController{
		ingestService:  ingestService,
		chatbotService: chatbotService,
	}
}

func (c *ingestController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/session/v1")
	h.Post("repository", c.IngestRepository)
	h.Post("upload", c.IngestFile)
	h.Delete(":id", c.DeleteSession)
}

func (c *ingestController) IngestRepository(ctx *fiber.Ctx) error {
	var req dto.IngestRepositoryRequest
	if err := ctx.BodyParser(&req); err != nil {
		return apperror.InvalidRequest("malformed request body", err)
	}
	req.Repo = strings.TrimSpace(req.Repo)

	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.ingestService.IngestRepository(ctx.UserContext(), &req)
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse(constant.IngestRepositorySuccessMessage, res))
}

func (c *ingestController) IngestFile(ctx *fiber.Ctx) error {
	header, err := ctx.FormFile(constant.UploadFormField)
	if err != nil {
		return apperror.InvalidRequest("multipart field \""+constant.UploadFormField+"\" is required", err)
	}

	file, err := header.Open()
	if err != nil {
		return apperror.InvalidRequest("cannot open uploaded file", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return apperror.InvalidRequest("cannot read uploaded file", err)
	}

	res, err := c.ingestService.IngestFile(ctx.UserContext(), &dto.IngestFileRequest{
		FileName: header.Filename,
		Data:     data,
	})
	if err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse(constant.IngestFileSuccessMessage, res))
}

func (c *ingestController) DeleteSession(ctx *fiber.Ctx) error {
	if err := c.chatbotService.DeleteSession(ctx.UserContext(), ctx.Params("id")); err != nil {
		return err
	}

	return ctx.JSON(serverutils.SuccessResponse[any](constant.SessionDeletedMessage, nil))
}
