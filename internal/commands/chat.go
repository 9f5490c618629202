package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"finai/internal/oracle"
	"finai/internal/session"
)

type chatOptions struct {
	userID    string
	userName  string
	imagePath string
	confirm   bool
}

// chatOutput is what chat prints: the assistant reply and, with --confirm,
// the confirmation of the transaction it created.
type chatOutput struct {
	Reply        session.Reply         `json:"reply"`
	Confirmation *session.Confirmation `json:"confirmation,omitempty"`
}

func newChatCommand(a *app) *cobra.Command {
	var opts chatOptions

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Send one message to the assistant and print the outcome",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd.Context(), cmd.OutOrStdout(), opts, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&opts.userID, "user", "", "user id (required)")
	cmd.Flags().StringVar(&opts.userName, "name", "", "display name, defaults to the user id")
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "receipt photo to attach")
	cmd.Flags().BoolVar(&opts.confirm, "confirm", false, "confirm the transaction the message created")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func (a *app) chat(ctx context.Context, out io.Writer, opts chatOptions, text string) error {
	img, err := readImage(opts.imagePath)
	if err != nil {
		return err
	}

	sess, closeSession, err := a.userSession(ctx, opts.userID, opts.userName)
	if err != nil {
		return err
	}

	result, err := runChat(ctx, sess, session.Message{Text: text, Image: img}, opts.confirm)
	closeErr := closeSession()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return closeErr
	}
	return writeJSON(out, result)
}

func runChat(ctx context.Context, sess *session.Session, msg session.Message, confirm bool) (chatOutput, error) {
	reply, err := sess.SubmitMessage(ctx, msg)
	if err != nil {
		return chatOutput{}, err
	}
	res := chatOutput{Reply: reply}
	if confirm && reply.Transaction != nil {
		c, err := sess.Confirm(ctx, reply.Transaction.ID, nil)
		if err != nil {
			return chatOutput{}, fmt.Errorf("confirm %s: %w", reply.Transaction.ID, err)
		}
		res.Confirmation = &c
	}
	return res, nil
}

func readImage(path string) (*oracle.Image, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, errors.New("attachment is not an image: " + mime)
	}
	return &oracle.Image{MIMEType: mime, Data: data}, nil
}
