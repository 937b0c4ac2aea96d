package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdmitMemberFillsCluster(t *testing.T) {
	cluster := NewCluster("GDC1", 1, 3, "cocoa")

	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))
	assert.Equal(t, 1, cluster.CurrentFill)
	assert.Equal(t, ClusterStatusForming, cluster.Status)

	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(20000)))
	assert.Equal(t, ClusterStatusForming, cluster.Status)

	// 最后一个成员提交时原子转入 READY
	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(15000)))
	assert.Equal(t, 3, cluster.CurrentFill)
	assert.Equal(t, ClusterStatusReady, cluster.Status)
	assert.True(t, cluster.TotalCapital.Equal(decimal.NewFromInt(45000)))
}

func TestAdmitMemberRejectsOverfill(t *testing.T) {
	cluster := NewCluster("GDC1", 1, 1, "cocoa")
	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))

	err := cluster.AdmitMember(decimal.NewFromInt(10000))
	assert.ErrorIs(t, err, ErrCapacityExceeded)
	assert.Equal(t, 1, cluster.CurrentFill)
}

func TestActivateRequiresReady(t *testing.T) {
	cluster := NewCluster("GDC1", 1, 2, "cocoa")

	assert.Error(t, cluster.Activate("CYC1"))

	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))
	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))
	require.NoError(t, cluster.Activate("CYC1"))
	assert.Equal(t, ClusterStatusActive, cluster.Status)
	assert.Equal(t, "CYC1", cluster.ActiveCycleID)

	// 运行中不可重复激活
	assert.Error(t, cluster.Activate("CYC2"))
}

func TestCompleteCycleUpdatesAverageROI(t *testing.T) {
	cluster := NewCluster("GDC1", 1, 1, "cocoa")
	require.NoError(t, cluster.AdmitMember(decimal.NewFromInt(10000)))

	require.NoError(t, cluster.Activate("CYC1"))
	require.NoError(t, cluster.CompleteCycle(decimal.NewFromFloat(0.10)))
	assert.Equal(t, ClusterStatusReady, cluster.Status)
	assert.Empty(t, cluster.ActiveCycleID)
	assert.Equal(t, 1, cluster.CyclesCompleted)
	assert.True(t, cluster.AverageROI.Equal(decimal.NewFromFloat(0.10)))

	require.NoError(t, cluster.Activate("CYC2"))
	require.NoError(t, cluster.CompleteCycle(decimal.NewFromFloat(0.20)))
	assert.Equal(t, 2, cluster.CyclesCompleted)
	assert.True(t, cluster.AverageROI.Equal(decimal.NewFromFloat(0.15)),
		"average of 10%% and 20%%, got %s", cluster.AverageROI)
}

func TestCompleteCycleRequiresActive(t *testing.T) {
	cluster := NewCluster("GDC1", 1, 1, "cocoa")
	assert.Error(t, cluster.CompleteCycle(decimal.NewFromFloat(0.10)))
}

func TestSlotStateString(t *testing.T) {
	assert.Equal(t, "RESERVED", SlotStateReserved.String())
	assert.Equal(t, "COMMITTED", SlotStateCommitted.String())
	assert.Equal(t, "RELEASED", SlotStateReleased.String())
}
