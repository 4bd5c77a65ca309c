package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/finch-technologies/go-sqs-listener/codec"
	"github.com/finch-technologies/go-sqs-listener/publisher"
	"github.com/finch-technologies/go-sqs-listener/queue"
	"github.com/finch-technologies/go-sqs-listener/queue/types"
	"github.com/finch-technologies/go-sqs-listener/utils"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newSendCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send BODY",
		Short: "Publish a JSON message",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE:  runSend,
	}
	cmd.Flags().String("queue", "", "Target queue name (default SQS_QUEUE)")
	cmd.Flags().String("queue-url", "", "Target queue url, skips name resolution")
	cmd.Flags().Int("delay", 0, "Delay in seconds before the message becomes visible")
	cmd.Flags().String("group-id", "", "Message group id (FIFO queues)")
	cmd.Flags().String("dedup-id", "", "Deduplication id (FIFO queues)")
	cmd.Flags().Bool("create", false, "Create the queue when it does not exist")
	cmd.Flags().Int("retries", 3, "Send attempts before giving up")
	return cmd
}

func runSend(cmd *cobra.Command, args []string) error {
	payload, err := codec.JSON{}.Decode(args[0])
	if err != nil {
		return usageError{err: err}
	}

	retries, _ := cmd.Flags().GetInt("retries")
	if retries < 1 {
		return usageErrorf("--retries must be at least 1")
	}

	rt, err := setup(cmd)
	if err != nil {
		return err
	}

	name, _ := cmd.Flags().GetString("queue")
	url, _ := cmd.Flags().GetString("queue-url")
	create, _ := cmd.Flags().GetBool("create")
	if name == "" && url == "" {
		name, url = rt.config.Queue, rt.config.QueueURL
	}

	ctx := cmd.Context()
	p, err := publisher.New(ctx, rt.backend, publisher.Config{
		Queue:             name,
		QueueURL:          url,
		Create:            create,
		VisibilityTimeout: utils.Ptr(rt.config.VisibilityTimeout),
	}, publisher.WithLogger(rt.logger))
	if err != nil {
		if errors.Is(err, queue.ErrConfiguration) {
			return usageError{err: err}
		}
		return err
	}

	delay, _ := cmd.Flags().GetInt("delay")
	groupId, _ := cmd.Flags().GetString("group-id")
	dedupId, _ := cmd.Flags().GetString("dedup-id")

	options := types.EnqueueOptions{
		DelaySeconds:    delay,
		MessageGroupId:  groupId,
		DeduplicationId: dedupId,
	}

	// Publish never retries; the CLI does, reusing the dedup id of the
	// first attempt on FIFO queues.
	if p.Identity().Fifo && options.DeduplicationId == "" {
		options.DeduplicationId = uuid.New().String()
	}

	result, err := utils.RetryIf(ctx, retries, time.Second, retryableSend, func(attempt int) (types.SendResult, error) {
		if attempt > 0 {
			rt.logger.Warningf("retrying send to %s (attempt %d)", p.Identity(), attempt+1)
		}
		return p.Publish(ctx, payload, options)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), result.MessageId)
	return nil
}

// retryableSend reports whether a failed send may succeed when repeated.
func retryableSend(err error) bool {
	return errors.Is(err, queue.ErrBackendUnavailable)
}

func newCreateQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-queue NAME",
		Short: "Create a queue unless it exists and print its url",
		Args:  usageArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := setup(cmd)
			if err != nil {
				return err
			}

			visibilityTimeout, _ := cmd.Flags().GetInt("visibility-timeout")
			if !cmd.Flags().Changed("visibility-timeout") {
				visibilityTimeout = rt.config.VisibilityTimeout
			}

			identity, err := queue.Resolve(cmd.Context(), rt.backend, args[0], queue.ResolveOptions{
				Create:            true,
				VisibilityTimeout: utils.Ptr(visibilityTimeout),
			})
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), identity.URL)
			return nil
		},
	}
	cmd.Flags().Int("visibility-timeout", 0, "Visibility timeout in seconds (default SQS_VISIBILITY_TIMEOUT)")
	return cmd
}
