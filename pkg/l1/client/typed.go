package client

import (
	"context"
	"fmt"

	"github.com/robotalks/motorsense/pkg/l0/msgs"
)

// GetSensorData refreshes and reads the sensors.
func (c *Client) GetSensorData(ctx context.Context) (msgs.SensorData, error) {
	resp, err := c.Do(ctx, msgs.NewGetSensorData())
	if err != nil {
		return msgs.SensorData{}, err
	}
	data, ok := resp.(msgs.SensorData)
	if !ok {
		return msgs.SensorData{}, fmt.Errorf("unexpected response %s", resp.Kind())
	}
	return data, nil
}

// GetStatus reads the device status.
func (c *Client) GetStatus(ctx context.Context) (msgs.Status, error) {
	resp, err := c.Do(ctx, msgs.NewGetStatus())
	if err != nil {
		return msgs.Status{}, err
	}
	status, ok := resp.(msgs.Status)
	if !ok {
		return msgs.Status{}, fmt.Errorf("unexpected response %s", resp.Kind())
	}
	return status, nil
}

// SetLED turns the LED on (non-zero) or off.
func (c *Client) SetLED(ctx context.Context, state int) error {
	_, err := c.Do(ctx, msgs.NewSetLED(state))
	return err
}

// SetMotor sets the motor speed (0-255) and direction (1, -1, 0 stops).
func (c *Client) SetMotor(ctx context.Context, speed, direction int) error {
	_, err := c.Do(ctx, msgs.NewSetMotor(speed, direction))
	return err
}

// StopMotor stops the motor.
func (c *Client) StopMotor(ctx context.Context) error {
	_, err := c.Do(ctx, msgs.NewStopMotor())
	return err
}
